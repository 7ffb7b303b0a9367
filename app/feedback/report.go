package feedback

import (
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const notAvailable = "N/A"

// ReportTimeLayout formats the submission timestamp in reports.
const ReportTimeLayout = "2006-01-02 15:04:05 MST"

// User identifies the author of a feedback message.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// UserFromTele copies the identifying fields of a Telegram user.
func UserFromTele(u *tele.User) User {
	if u == nil {
		return User{}
	}
	return User{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

// Handle returns "@username", or N/A when the user has none.
func (u User) Handle() string {
	if name := strings.TrimSpace(u.Username); name != "" {
		return "@" + name
	}
	return notAvailable
}

// DisplayName joins first and last name, or returns N/A.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return notAvailable
}

// BuildReport renders the mail body sent to the feedback mailbox.
func BuildReport(u User, text string, at time.Time) string {
	var b strings.Builder
	b.WriteString("New feedback from the Telegram bot\n\n")
	fmt.Fprintf(&b, "User ID: %d\n", u.ID)
	fmt.Fprintf(&b, "Username: %s\n", u.Handle())
	fmt.Fprintf(&b, "Name: %s\n\n", u.DisplayName())
	b.WriteString("Feedback:\n")
	b.WriteString(text)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Submitted at: %s\n", at.Format(ReportTimeLayout))
	return b.String()
}
