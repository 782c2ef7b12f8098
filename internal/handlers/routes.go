package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/services"
	"gorm.io/gorm"
)

// Mount registers the /api routes on app.
func Mount(app *fiber.App, db *gorm.DB, registry *services.Registry) {
	authHandler := NewAuthHandler(db, registry.Audit)
	accountsHandler := NewAccountsHandler(db)
	foldersHandler := NewFoldersHandler(registry.Folders)
	entriesHandler := NewEntriesHandler(registry.Entries)
	uploadsHandler := NewUploadsHandler(registry.Uploads)
	groupsHandler := NewGroupsHandler(db, registry.Audit)
	activitiesHandler := NewActivitiesHandler(db)
	auditHandler := NewAuditHandler(db, registry.Audit)
	authMiddleware := middleware.NewAuthMiddleware(db)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	api.Get("/accounts/search", authMiddleware.RequireAuth, accountsHandler.Search)
	accountRoutes := api.Group("/accounts", authMiddleware.RequireAuth, middleware.AdminOnly)
	accountRoutes.Get("/", accountsHandler.List)
	accountRoutes.Get("/:id", accountsHandler.Get)
	accountRoutes.Put("/:id", accountsHandler.Update)

	// Folder and entry reads go through OptionalAuth so anonymous callers can see
	// public content; everything else requires an account.
	requireAuth := authMiddleware.RequireAuth
	optionalAuth := authMiddleware.OptionalAuth

	folderRoutes := api.Group("/folders")
	folderRoutes.Post("/", requireAuth, foldersHandler.Create)
	folderRoutes.Get("/", requireAuth, foldersHandler.ListPersonal)
	folderRoutes.Get("/shared", requireAuth, foldersHandler.ListShared)
	folderRoutes.Get("/available", requireAuth, foldersHandler.ListAvailable)
	folderRoutes.Get("/public", optionalAuth, foldersHandler.ListPublic)
	folderRoutes.Get("/public/entries", optionalAuth, foldersHandler.ListPublicEntries)
	folderRoutes.Get("/drafts", requireAuth, foldersHandler.ListDrafts)
	folderRoutes.Get("/pending", requireAuth, middleware.AdminOnly, foldersHandler.ListPending)
	folderRoutes.Get("/pending/entries", requireAuth, middleware.AdminOnly, foldersHandler.ListPendingEntries)
	folderRoutes.Get("/stats", requireAuth, foldersHandler.Stats)
	folderRoutes.Post("/contents", requireAuth, foldersHandler.AddToFolders)
	folderRoutes.Get("/:id", optionalAuth, foldersHandler.Contents)
	folderRoutes.Put("/:id", requireAuth, foldersHandler.Update)
	folderRoutes.Delete("/:id", requireAuth, foldersHandler.Delete)
	folderRoutes.Post("/:id/entries", requireAuth, foldersHandler.AddEntries)
	folderRoutes.Delete("/:id/entries", requireAuth, foldersHandler.RemoveEntries)
	folderRoutes.Post("/:id/move", requireAuth, foldersHandler.Move)
	folderRoutes.Get("/:id/permissions", requireAuth, foldersHandler.ListPermissions)
	folderRoutes.Post("/:id/permissions", requireAuth, foldersHandler.CreatePermission)
	folderRoutes.Delete("/:id/permissions", requireAuth, foldersHandler.RemovePermission)
	folderRoutes.Put("/:id/public", requireAuth, foldersHandler.EnablePublicAccess)
	folderRoutes.Delete("/:id/public", requireAuth, foldersHandler.DisablePublicAccess)
	folderRoutes.Post("/:id/propagate", requireAuth, foldersHandler.RetryPropagation)

	entryRoutes := api.Group("/entries")
	entryRoutes.Post("/", requireAuth, entriesHandler.Create)
	entryRoutes.Get("/:id", optionalAuth, entriesHandler.Get)
	entryRoutes.Put("/:id", requireAuth, entriesHandler.Update)
	entryRoutes.Delete("/:id", requireAuth, entriesHandler.Delete)
	entryRoutes.Post("/:id/permissions", requireAuth, entriesHandler.CreatePermission)
	entryRoutes.Delete("/:id/permissions", requireAuth, entriesHandler.RemovePermission)

	uploadRoutes := api.Group("/uploads", authMiddleware.RequireAuth)
	uploadRoutes.Post("/", uploadsHandler.Create)
	uploadRoutes.Get("/", uploadsHandler.ListMine)
	uploadRoutes.Get("/pending", middleware.AdminOnly, uploadsHandler.ListPending)
	uploadRoutes.Get("/:id", uploadsHandler.Get)
	uploadRoutes.Post("/:id/entries", uploadsHandler.AddEntries)
	uploadRoutes.Get("/:id/validation", uploadsHandler.Validate)
	uploadRoutes.Post("/:id/submit", uploadsHandler.Submit)
	uploadRoutes.Post("/:id/approve", middleware.AdminOnly, uploadsHandler.Approve)
	uploadRoutes.Delete("/:id", uploadsHandler.Delete)

	groupRoutes := api.Group("/groups", authMiddleware.RequireAuth)
	groupRoutes.Post("/", groupsHandler.Create)
	groupRoutes.Get("/", groupsHandler.List)
	groupRoutes.Get("/:id", groupsHandler.Get)
	groupRoutes.Put("/:id", groupsHandler.Update)
	groupRoutes.Delete("/:id", groupsHandler.Delete)
	groupRoutes.Post("/:id/members", groupsHandler.AddMember)
	groupRoutes.Delete("/:id/members/:accountId", groupsHandler.RemoveMember)
	groupRoutes.Put("/:id/members/:accountId", groupsHandler.UpdateMemberRole)

	activityRoutes := api.Group("/activities", authMiddleware.RequireAuth)
	activityRoutes.Get("/", activitiesHandler.List)
	activityRoutes.Get("/unread-count", activitiesHandler.UnreadCount)
	activityRoutes.Put("/read-all", activitiesHandler.MarkAllRead)
	activityRoutes.Put("/:id/read", activitiesHandler.MarkRead)

	auditRoutes := api.Group("/audit", authMiddleware.RequireAuth)
	auditRoutes.Get("/export", auditHandler.ExportMyLog)
	auditRoutes.Post("/export", middleware.AdminOnly, auditHandler.Export)
}
