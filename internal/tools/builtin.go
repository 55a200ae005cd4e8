package tools

import "github.com/deskmail/deskmail/internal/mailbox"

// RegisterMailbox registers every mailbox tool backed by svc.
func RegisterMailbox(r *Registry, svc *mailbox.Service) {
	for _, t := range []Tool{
		NewListRecentTool(svc),
		NewSearchTool(svc),
		NewCountUnreadTool(svc),
		NewListFoldersTool(svc),
		NewGetEmailTool(svc),
		NewReplyTool(svc),
		NewMoveTool(svc),
		NewComposeTool(svc),
		NewCreateTaskTool(svc),
		NewGetTasksTool(svc),
		NewMarkTaskCompleteTool(svc),
		NewBriefingTool(svc),
		NewPrioritizeTool(svc),
		NewClassifyTool(svc),
		NewLoadTool(svc),
	} {
		r.Register(t)
	}
}
