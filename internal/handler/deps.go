package handler

import (
	"hichat/internal/app/chat"
	"hichat/internal/app/identity"
	"hichat/internal/app/order"
	"hichat/internal/app/storage"
	"hichat/internal/app/store"
	"hichat/internal/configs"
	"hichat/internal/pkg/pow"
)

// AppDeps carries everything the HTTP handlers need.
type AppDeps struct {
	Chat     *chat.Manager
	Config   *configs.AppConfig
	Store    store.Gateway
	Identity *identity.Service
	Orders   *order.Service
	Pow      *pow.Manager

	// Exporter is nil when no S3 target is configured.
	Exporter *storage.Exporter
}
