package service

import (
	"fmt"
	"strings"

	orderdomain "github.com/smallbiznis/pantry/internal/order/domain"
)

func numbered(names []string) string {
	lines := make([]string, 0, len(names))
	for i, name := range names {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	return strings.Join(lines, "\n")
}

// shortageLines renders "1. Tea x2 - reason" lines, at most limit of them
// when limit is positive.
func shortageLines(unavailable []orderdomain.Unavailable, limit int) string {
	if limit > 0 && len(unavailable) > limit {
		unavailable = unavailable[:limit]
	}
	lines := make([]string, 0, len(unavailable))
	for i, u := range unavailable {
		lines = append(lines, fmt.Sprintf("%d. %s x%d - %s", i+1, u.Item.MenuName, u.Item.Quantity, u.Reason))
	}
	return strings.Join(lines, "\n")
}

func createdMessage(order *orderdomain.Order, unavailable []orderdomain.Unavailable) string {
	if len(unavailable) == 0 {
		return fmt.Sprintf("Order created with queue number %d. All menus are available and being prepared.", order.QueueNumber)
	}
	available := make([]string, 0)
	for _, item := range order.ActiveItems() {
		available = append(available, item.MenuName)
	}
	cancelled := make([]string, 0, len(unavailable))
	for _, u := range unavailable {
		cancelled = append(cancelled, u.Item.MenuName)
	}
	return fmt.Sprintf("Order created with queue number %d.\n\nAvailable: %s\nCancelled: %s\n\nThese menus are unavailable and were cancelled automatically:\n%s",
		order.QueueNumber,
		strings.Join(available, ", "),
		strings.Join(cancelled, ", "),
		shortageLines(unavailable, 0),
	)
}

// joinMenuNames renders "A", "A and B" or "A, B, and C".
func joinMenuNames(items []orderdomain.Item) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.MenuName)
	}
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
