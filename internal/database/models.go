package database

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"resumeforge/internal/resume"
)

// User 表示一个已完成 onboarding 的账号，Subject 为身份提供方的 sub。
type User struct {
	gorm.Model
	Subject        string   `gorm:"uniqueIndex;size:255;not null"`
	Email          string   `gorm:"size:320"`
	MasterResumeID *uint    `gorm:"index"`
	Resumes        []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示用户的一份简历。是否为 master 由 User.MasterResumeID 决定，而不是简历自身的标记。
type Resume struct {
	gorm.Model
	UserID       uint                                    `gorm:"index;not null"`
	User         User                                    `gorm:"constraint:OnDelete:CASCADE"`
	Title        string                                  `gorm:"size:255"`
	PersonalInfo datatypes.JSONType[resume.PersonalInfo] `gorm:"type:jsonb"`
	Summary      string                                  `gorm:"type:text"`
	Experience   datatypes.JSONSlice[resume.Experience]  `gorm:"type:jsonb"`
	Education    datatypes.JSONSlice[resume.Education]   `gorm:"type:jsonb"`
	Skills       datatypes.JSONSlice[string]             `gorm:"type:jsonb"`
	Projects     datatypes.JSONSlice[resume.Project]     `gorm:"type:jsonb"`
}

// Content 取出简历的内容字段，nil 列表统一成空切片。
func (r Resume) Content() resume.Content {
	return resume.Content{
		PersonalInfo: r.PersonalInfo.Data(),
		Summary:      r.Summary,
		Experience:   nonNil([]resume.Experience(r.Experience)),
		Education:    nonNil([]resume.Education(r.Education)),
		Skills:       nonNil([]string(r.Skills)),
		Projects:     nonNil([]resume.Project(r.Projects)),
	}
}

// SetContent 覆盖全部内容字段。
func (r *Resume) SetContent(c resume.Content) {
	r.PersonalInfo = datatypes.NewJSONType(c.PersonalInfo)
	r.Summary = c.Summary
	r.Experience = datatypes.JSONSlice[resume.Experience](nonNil(c.Experience))
	r.Education = datatypes.JSONSlice[resume.Education](nonNil(c.Education))
	r.Skills = datatypes.JSONSlice[string](nonNil(c.Skills))
	r.Projects = datatypes.JSONSlice[resume.Project](nonNil(c.Projects))
}

// Suggestion 是每份简历唯一的一条 AI 建议记录，由 resume_id 上的唯一索引保证。
// Generation 每次请求递增；ReconciledGeneration 记录当前 Recommendations 对应的请求。
type Suggestion struct {
	ID                   uint `gorm:"primarykey"`
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ResumeID             uint                                       `gorm:"uniqueIndex;not null"`
	JobDescription       string                                     `gorm:"type:text"`
	Generation           uint64                                     `gorm:"not null;default:0"`
	ReconciledGeneration uint64                                     `gorm:"not null;default:0"`
	Recommendations      datatypes.JSONSlice[resume.Recommendation] `gorm:"type:jsonb"`
}

// Pending 表示最新一次请求的结果还没有落库。
func (s Suggestion) Pending() bool {
	return s.Generation > s.ReconciledGeneration
}

// 建议生成任务状态。
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobStale     = "stale"
)

// SuggestionJob 是持久化的生成任务记录，用于重启后补投递与排障。
type SuggestionJob struct {
	ID             uint `gorm:"primarykey"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SuggestionID   uint                                `gorm:"index;not null"`
	Generation     uint64                              `gorm:"not null"`
	JobDescription string                              `gorm:"type:text"`
	Snapshot       datatypes.JSONType[resume.Snapshot] `gorm:"type:jsonb"`
	Status         string                              `gorm:"size:32;index"`
	CorrelationID  string                              `gorm:"size:64"`
	Error          string                              `gorm:"type:text"`
}

// ExportArchive 记录导出到对象存储的 PDF。
type ExportArchive struct {
	gorm.Model
	ResumeID  uint   `gorm:"index;not null"`
	UserID    uint   `gorm:"index;not null"`
	ObjectKey string `gorm:"size:512"`
	Filename  string `gorm:"size:255"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{&User{}, &Resume{}, &Suggestion{}, &SuggestionJob{}, &ExportArchive{}}
}

// PatchColumns 把补丁转换成只包含非 nil 字段的列更新。
func PatchColumns(p resume.Patch) map[string]any {
	cols := make(map[string]any)
	if p.Title != nil {
		cols["title"] = strings.TrimSpace(*p.Title)
	}
	if p.PersonalInfo != nil {
		cols["personal_info"] = datatypes.NewJSONType(*p.PersonalInfo)
	}
	if p.Summary != nil {
		cols["summary"] = *p.Summary
	}
	if p.Experience != nil {
		cols["experience"] = datatypes.JSONSlice[resume.Experience](nonNil(*p.Experience))
	}
	if p.Education != nil {
		cols["education"] = datatypes.JSONSlice[resume.Education](nonNil(*p.Education))
	}
	if p.Skills != nil {
		cols["skills"] = datatypes.JSONSlice[string](resume.NormalizeSkills(*p.Skills))
	}
	if p.Projects != nil {
		cols["projects"] = datatypes.JSONSlice[resume.Project](nonNil(*p.Projects))
	}
	return cols
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
