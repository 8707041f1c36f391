package domain

import (
	"strings"
	"time"
)

// TaskStatus is the board bucket a task sits in.
type TaskStatus string

const (
	StatusTodo      TaskStatus = "todo"
	StatusInProcess TaskStatus = "in-process"
	StatusDone      TaskStatus = "done"
)

// Valid reports whether the status is one of the known buckets.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProcess, StatusDone:
		return true
	}
	return false
}

// Task represents a unit of work owned by exactly one manager. OwnerID is
// always a manager id; CreatedBy keeps the true author when a linked client
// created the task on the manager's behalf.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Phone       string     `json:"phone,omitempty"`
	Description string     `json:"description,omitempty"`
	Due         time.Time  `json:"due,omitzero"`
	Status      TaskStatus `json:"status"`
	OwnerID     string     `json:"userId"`
	CreatedBy   string     `json:"createdBy"`
	AssignedTo  []string   `json:"assignedTo,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// AssignedContains reports whether the task's assignment set holds id.
func (t Task) AssignedContains(id string) bool {
	for _, a := range t.AssignedTo {
		if a == id {
			return true
		}
	}
	return false
}

// Comment is an append-only note on a task.
type Comment struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"taskId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TaskDraft is the pre-validation shape of a task, either user input or the
// untrusted output of the extraction collaborator.
type TaskDraft struct {
	Title       string `json:"title"`
	Phone       string `json:"phone,omitempty"`
	Description string `json:"description,omitempty"`
	Due         string `json:"due,omitempty"`
	Status      string `json:"status,omitempty"`
}

// ValidateDraft checks a draft and returns the task fields it describes.
// The returned task has no id, owner or timestamps; the caller fills those.
func ValidateDraft(d TaskDraft) (Task, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Task{}, &ValidationError{Field: "title", Reason: "required"}
	}

	phone := strings.TrimSpace(d.Phone)
	if phone != "" {
		normalized, ok := NormalizePhone(phone)
		if !ok {
			return Task{}, &ValidationError{Field: "phone", Reason: "malformed phone number"}
		}
		phone = normalized
	}

	status := StatusTodo
	if d.Status != "" {
		status = TaskStatus(strings.ToLower(strings.TrimSpace(d.Status)))
		if !status.Valid() {
			return Task{}, &ValidationError{Field: "status", Reason: "unknown status " + d.Status}
		}
	}

	var due time.Time
	if raw := strings.TrimSpace(d.Due); raw != "" {
		parsed, ok := parseDue(raw)
		if !ok {
			return Task{}, &ValidationError{Field: "due", Reason: "unparseable timestamp"}
		}
		due = parsed
	}

	return Task{
		Title:       title,
		Phone:       phone,
		Description: strings.TrimSpace(d.Description),
		Due:         due,
		Status:      status,
	}, nil
}

func parseDue(raw string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizePhone strips grouping characters and validates the digit count.
// It accepts an optional leading + and 7 to 15 digits.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits++
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// grouping only
		default:
			return "", false
		}
	}
	if digits < 7 || digits > 15 {
		return "", false
	}
	return b.String(), true
}
