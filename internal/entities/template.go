package entities

import (
	"regexp"
	"strings"
)

var templateVar = regexp.MustCompile(`\{\{\s*([a-zA-Z_]+)\s*\}\}`)

// RenderTemplate substitutes {{name}}, {{company}} and {{phone}} with the
// contact's fields. Unknown variables and missing fields become "".
func RenderTemplate(source string, c Contact) string {
	return templateVar.ReplaceAllStringFunc(source, func(m string) string {
		key := strings.ToLower(templateVar.FindStringSubmatch(m)[1])
		switch key {
		case "name":
			return c.Name
		case "company":
			return c.Company
		case "phone":
			return c.Phone
		}
		return ""
	})
}
