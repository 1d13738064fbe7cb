package dto

import "time"

type CreateLevelInput struct {
	ItemID       string
	LocationID   string
	OnHand       int64
	ReorderPoint int64
	MaximumStock int64
	Reason       string
	ActorRef     string
}

type UpdateThresholdsInput struct {
	ItemID       string
	LocationID   string
	ReorderPoint int64
	MaximumStock int64
}

type AdjustInput struct {
	ItemID     string
	LocationID string
	Delta      int64
	Reason     string
	ActorRef   string
}

type ReserveInput struct {
	ItemID     string
	LocationID string
	Quantity   int64
	HolderRef  string
	TTL        time.Duration // zero means the configured default
	RequestID  string        // optional idempotency key
	ActorRef   string
}
