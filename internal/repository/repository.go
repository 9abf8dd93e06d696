// Package repository implements the service stores on MongoDB.
package repository

import "github.com/skinsociete/notification-engine/internal/services"

var (
	_ services.UserStore       = (*UserRepository)(nil)
	_ services.BehaviorStore   = (*BehaviorRepository)(nil)
	_ services.PreferenceStore = (*PreferenceRepository)(nil)
	_ services.SentStore       = (*NotificationRepository)(nil)
	_ services.ScheduledStore  = (*ScheduledRepository)(nil)
	_ services.EventLog        = (*ActivityRepository)(nil)
	_ services.ProductStore    = (*ProductRepository)(nil)
)
