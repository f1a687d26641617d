package service

import (
	"context"
	"time"

	"secretariat-data/internal/domain"
)

// CredentialEventType 凭据变更事件类型
type CredentialEventType string

const (
	CredentialCreated CredentialEventType = "credential.created"
	CredentialUpdated CredentialEventType = "credential.updated"
	CredentialDeleted CredentialEventType = "credential.deleted"
)

// CredentialEvent is published after every write the Reconciler or an operator performs.
type CredentialEvent struct {
	Type     CredentialEventType `json:"type"`
	Kind     domain.SourceKind   `json:"kind"`
	Ref      string              `json:"ref"`
	Username string              `json:"username"`
	At       time.Time           `json:"at"`
}

// EventPublisher 凭据事件发布（MQTT 或 no-op）
type EventPublisher interface {
	PublishCredentialEvent(ctx context.Context, ev CredentialEvent) error
}

// NopEventPublisher discards events.
type NopEventPublisher struct{}

func (NopEventPublisher) PublishCredentialEvent(context.Context, CredentialEvent) error { return nil }

// SourceChangeNotifier is called by the CRUD modules after a qualification-relevant
// change (name, phone, archived flag) to a member, district or town.
type SourceChangeNotifier interface {
	SourceChanged(ctx context.Context, kind domain.SourceKind, id int64) error
}

// ReportNotifier 全量同步报告通知（webhook）
type ReportNotifier interface {
	NotifyResync(ctx context.Context, report *ResyncReport) error
}
