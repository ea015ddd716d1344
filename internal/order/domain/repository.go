package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, order *Order) error
	// FindByID loads the order with its items, or nil.
	FindByID(ctx context.Context, db *gorm.DB, orderID string) (*Order, error)
	// LockByID row-locks the order and loads its items, or nil.
	LockByID(ctx context.Context, tx *gorm.DB, orderID string) (*Order, error)
	FindByQueue(ctx context.Context, db *gorm.DB, queueDate string, queueNumber int) (*Order, error)
	ListByDate(ctx context.Context, db *gorm.DB, queueDate string) ([]Order, error)
	List(ctx context.Context, db *gorm.DB) ([]Order, error)
	NextQueueNumber(ctx context.Context, tx *gorm.DB, queueDate string) (int, error)

	SaveOrder(ctx context.Context, tx *gorm.DB, order *Order) error
	SaveItems(ctx context.Context, tx *gorm.DB, items []Item) error

	// TransitionStock moves stock_state from one of from to to and reports
	// whether the row matched.
	TransitionStock(ctx context.Context, db *gorm.DB, orderID string, from []StockState, to StockState, at time.Time) (bool, error)
	// RecordStockAttempt bumps stock_attempts and stores the failure, moving
	// stock_state from one of from to next.
	RecordStockAttempt(ctx context.Context, db *gorm.DB, orderID string, from []StockState, next StockState, message string, at time.Time) error
	ListStockWork(ctx context.Context, db *gorm.DB, states []StockState, aborted bool, before time.Time, limit int) ([]Order, error)
	// ListUnreleasedItems returns cancelled lines of consumed orders that
	// still hold stock. An empty orderID lists every order.
	ListUnreleasedItems(ctx context.Context, db *gorm.DB, orderID string, limit int) ([]Item, error)
	MarkItemReleased(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// MarkUnsentReleased releases the cancelled lines of an order that were
	// not part of its consume.
	MarkUnsentReleased(ctx context.Context, db *gorm.DB, orderID string, sent []snowflake.ID) error
	CountStockStates(ctx context.Context, db *gorm.DB) (map[StockState]int64, error)

	InsertRoom(ctx context.Context, db *gorm.DB, room *Room) error
	SaveRoom(ctx context.Context, db *gorm.DB, room *Room) error
	FindRoomByName(ctx context.Context, db *gorm.DB, name string) (*Room, error)
	FindRoomByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
	ListActiveRooms(ctx context.Context, db *gorm.DB) ([]Room, error)
}
