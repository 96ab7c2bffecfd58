package notify

import (
	"fmt"
	"strings"
)

// AlertMessage builds the email for one alert.
func AlertMessage(competitor, title, message, updateURL, severity string) Message {
	var b strings.Builder
	b.WriteString("## Competitive Alert\n\n")
	fmt.Fprintf(&b, "**Competitor:** %s\n\n", competitor)
	fmt.Fprintf(&b, "**Severity:** %s\n\n", strings.ToUpper(severity))
	fmt.Fprintf(&b, "### %s\n\n", title)
	b.WriteString(message + "\n\n")
	if updateURL != "" {
		fmt.Fprintf(&b, "[View update](%s)\n", updateURL)
	}
	return Message{
		Subject:  fmt.Sprintf("[%s] %s", strings.ToUpper(severity), title),
		Markdown: b.String(),
	}
}
