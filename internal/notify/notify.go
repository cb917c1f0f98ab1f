// Package notify delivers match notifications to the chat platform and
// hosts the user-facing command surface.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"vintedwatch/monitor-service/internal/model"
	"vintedwatch/monitor-service/internal/pricing"
)

// Sink is the engine's view of the chat platform: one best-effort send per
// notification, no delivery confirmation.
type Sink interface {
	Send(ctx context.Context, n model.Notification) error
}

// RenderHTML formats a notification as a Telegram HTML message: price,
// brand, size, seller, rating, then the cost breakdown. Monetary values are
// rounded here and nowhere else.
func RenderHTML(n model.Notification) string {
	l := n.Listing

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(l.Title))
	if l.URL != "" {
		fmt.Fprintf(&b, "%s\n", l.URL)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "💰 Price: £%.2f\n", pricing.Round2(l.Price))
	fmt.Fprintf(&b, "🏷 Brand: %s\n", html.EscapeString(l.Brand))
	fmt.Fprintf(&b, "📏 Size: %s\n", html.EscapeString(l.Size))
	fmt.Fprintf(&b, "👤 Seller: %s (⭐ %.1f)\n", html.EscapeString(l.Seller), l.SellerRating)
	b.WriteString("\n")

	fmt.Fprintf(&b, "💸 Buyer Fee: £%.2f\n", pricing.Round2(n.Cost.BuyerFee))
	fmt.Fprintf(&b, "🚚 Shipping: £%.2f\n", pricing.Round2(n.Cost.Shipping))
	fmt.Fprintf(&b, "💵 Total Cost: £%.2f\n", pricing.Round2(n.Cost.Total))

	if !l.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "\n🕒 Listed %s ago", humanAge(time.Since(l.CreatedAt)))
	}
	return b.String()
}

func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
