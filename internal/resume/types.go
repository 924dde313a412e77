package resume

import "encoding/json"

// MasterTitle 是 onboarding 创建的主简历标题。
const MasterTitle = "Master Resume"

// PersonalInfo 是简历顶部的联系信息块。
type PersonalInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	LinkedIn string `json:"linkedin"`
	GitHub   string `json:"github"`
}

// Experience 描述一段工作经历。日期为自由文本，允许 "Present" 或留空。
type Experience struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Description string `json:"description"`
}

// Education 描述一段教育经历。
type Education struct {
	ID             string `json:"id,omitempty"`
	Degree         string `json:"degree"`
	School         string `json:"school"`
	Location       string `json:"location"`
	GraduationDate string `json:"graduationDate"`
	GPA            string `json:"gpa,omitempty"`
}

// Project 描述一个项目；Technologies 为自由文本。
type Project struct {
	ID           string `json:"id,omitempty"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Technologies string `json:"technologies"`
	Link         string `json:"link,omitempty"`
}

// Content 是简历中可编辑的内容字段（不含标题）。
type Content struct {
	PersonalInfo PersonalInfo `json:"personalInfo"`
	Summary      string       `json:"summary"`
	Experience   []Experience `json:"experience"`
	Education    []Education  `json:"education"`
	Skills       []string     `json:"skills"`
	Projects     []Project    `json:"projects"`
}

// Snapshot 是发给文本生成服务的简历快照。
type Snapshot struct {
	Title string `json:"title"`
	Content
}

// Patch 是对简历的部分更新；nil 字段保持不变，列表整体替换。
type Patch struct {
	Title        *string       `json:"title,omitempty"`
	PersonalInfo *PersonalInfo `json:"personalInfo,omitempty"`
	Summary      *string       `json:"summary,omitempty"`
	Experience   *[]Experience `json:"experience,omitempty"`
	Education    *[]Education  `json:"education,omitempty"`
	Skills       *[]string     `json:"skills,omitempty"`
	Projects     *[]Project    `json:"projects,omitempty"`
}

// Empty reports whether the patch touches no field.
func (p Patch) Empty() bool {
	return p.Title == nil && p.PersonalInfo == nil && p.Summary == nil &&
		p.Experience == nil && p.Education == nil && p.Skills == nil && p.Projects == nil
}

// Category 是建议针对的简历区块。
type Category string

const (
	CategorySummary    Category = "summary"
	CategoryExperience Category = "experience"
	CategoryEducation  Category = "education"
	CategorySkills     Category = "skills"
	CategoryProjects   Category = "projects"
)

// Categories lists every valid category.
var Categories = []Category{CategorySummary, CategoryExperience, CategoryEducation, CategorySkills, CategoryProjects}

// Valid reports whether c is one of the five fixed categories.
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Status 是单条建议的处理状态。
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three fixed statuses.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusRejected
}

// Recommendation 是一条 AI 建议。Metadata 原样透传，不约定结构。
type Recommendation struct {
	Type      Category        `json:"type"`
	Current   string          `json:"current"`
	Suggested string          `json:"suggested"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Status    Status          `json:"status"`
}
