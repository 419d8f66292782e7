package dto

import "strings"

type CreateTagRequest struct {
	Name string `json:"name"`
}

func (r *CreateTagRequest) Validate() []string {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return []string{"name is required"}
	}
	if len(name) > 100 {
		return []string{"name must be at most 100 characters"}
	}
	return nil
}
