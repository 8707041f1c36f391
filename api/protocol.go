package api

import "leaddesk-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type errorResponse struct {
	Error string `json:"error"`
}

type linkRequestBody struct {
	Code string `json:"code"`
}

type linkActionBody struct {
	ClientID string `json:"clientId"`
}

type convertBody struct {
	AccountID string `json:"accountId"`
	Role      string `json:"role"`
}

type createTaskBody struct {
	domain.TaskDraft
	AssignedTo []string `json:"assignedTo,omitempty"`
}

type patchTaskBody struct {
	Title       *string   `json:"title,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	Description *string   `json:"description,omitempty"`
	Due         *string   `json:"due,omitempty"`
	Status      *string   `json:"status,omitempty"`
	AssignedTo  *[]string `json:"assignedTo,omitempty"`
}

type commentBody struct {
	Text string `json:"text"`
}

type extractBody struct {
	Text string `json:"text"`
}

type meResponse struct {
	domain.Account
	LinkedClients []domain.ClientSummary `json:"linkedClients,omitempty"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type photoResponse struct {
	URL string `json:"url"`
}
