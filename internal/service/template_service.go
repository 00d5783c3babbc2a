package service

import (
	"fmt"
	"regexp"
	"strings"

	"crmdispatch/internal/models"
)

// Placeholder names understood by the renderer
const (
	FieldFirstName = "primeiro_nome"
	FieldName      = "nome"
	FieldProduct   = "produto"
	FieldStatus    = "status"
	FieldPhone     = "telefone"
)

// Any {{...}} is a placeholder, whatever characters the name holds
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]*?)\s*\}\}`)

var knownFields = map[string]bool{
	FieldFirstName: true,
	FieldName:      true,
	FieldProduct:   true,
	FieldStatus:    true,
	FieldPhone:     true,
}

// TemplateService handles message template rendering
type TemplateService struct{}

// NewTemplateService creates a new template service
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// AttributesFor captures the placeholder values of a contact at creation time
func (s *TemplateService) AttributesFor(contact *models.Contact) models.TemplateData {
	data := models.TemplateData{
		FieldFirstName: contact.FirstName(),
		FieldPhone:     contact.Phone,
	}
	if contact.Name != nil {
		data[FieldName] = strings.TrimSpace(*contact.Name)
	}
	if contact.Product != nil {
		data[FieldProduct] = *contact.Product
	}
	if contact.Status != nil {
		data[FieldStatus] = *contact.Status
	}
	return data
}

// Render replaces {{field}} placeholders with the recipient's values.
// Unresolved placeholders become the empty string.
func (s *TemplateService) Render(template string, data models.TemplateData) (string, error) {
	if template == "" {
		return "", fmt.Errorf("template cannot be empty")
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]
		return data[strings.ToLower(field)]
	})

	return strings.TrimSpace(rendered), nil
}

// ValidateTemplate checks that every {{ has a matching }}
func (s *TemplateService) ValidateTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("template cannot be empty")
	}

	openCount := strings.Count(template, "{{")
	closeCount := strings.Count(template, "}}")
	if openCount != closeCount {
		return fmt.Errorf("template has unbalanced braces: %d open, %d close", openCount, closeCount)
	}

	return nil
}

// UnknownPlaceholders lists placeholders the renderer will blank out
func (s *TemplateService) UnknownPlaceholders(template string) []string {
	unknown := []string{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !knownFields[strings.ToLower(m[1])] {
			unknown = append(unknown, m[1])
		}
	}
	return unknown
}
