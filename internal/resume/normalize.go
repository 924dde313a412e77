package resume

import "strings"

// NormalizeSkills trims entries, drops blanks and removes case-insensitive duplicates,
// keeping the first spelling in its original position.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Normalize 在写入边界整理内容：列表不为 nil，技能去重。
func (c Content) Normalize() Content {
	if c.Experience == nil {
		c.Experience = []Experience{}
	}
	if c.Education == nil {
		c.Education = []Education{}
	}
	if c.Projects == nil {
		c.Projects = []Project{}
	}
	c.Skills = NormalizeSkills(c.Skills)
	return c
}
