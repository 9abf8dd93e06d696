package services

import (
	"strings"

	"github.com/skinsociete/notification-engine/internal/models"
)

// Render substitutes literal {key} tokens in every text field of the template.
// Keys missing from vars stay verbatim. {firstName} defaults to "there".
func Render(tpl *models.NotificationTemplate, vars map[string]string) models.RenderedMessage {
	pairs := make([]string, 0, 2*len(vars)+2)
	if _, ok := vars["firstName"]; !ok {
		pairs = append(pairs, "{firstName}", "there")
	}
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	msg := models.RenderedMessage{
		TemplateID: tpl.ID,
		Category:   tpl.Category,
		Priority:   tpl.Priority,
		Title:      r.Replace(tpl.Title),
		Body:       r.Replace(tpl.Body),
		DeepLink:   r.Replace(tpl.DeepLink),
	}
	if len(tpl.Actions) > 0 {
		msg.Actions = make([]models.ActionButton, len(tpl.Actions))
		for i, a := range tpl.Actions {
			msg.Actions[i] = models.ActionButton{
				ID:       a.ID,
				Text:     r.Replace(a.Text),
				DeepLink: r.Replace(a.DeepLink),
			}
		}
	}
	return msg
}
