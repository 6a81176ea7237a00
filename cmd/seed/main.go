// Command seed fills an empty database with an admin, two students and a
// handful of sample events. Accounts that already exist are left alone.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"campusconnect/apperr"
	"campusconnect/auth"
	"campusconnect/config"
	"campusconnect/db"
	"campusconnect/models"
)

type seedUser struct {
	email, password, name, rollNumber string
	role                              models.Role
}

var users = []seedUser{
	{"admin@campusconnect.com", "admin123", "Admin User", "ADMIN001", models.RoleAdmin},
	{"student1@example.com", "user123", "John Doe", "CS2021001", models.RoleUser},
	{"student2@example.com", "user123", "Jane Smith", "CS2021002", models.RoleUser},
}

type seedEvent struct {
	title, description, venue, time, category, organizer, imageURL string
	inDays, capacity                                               int
}

var events = []seedEvent{
	{
		title:       "Tech Fest 2025",
		description: "Annual technology festival featuring workshops, competitions and guest lectures from industry experts.",
		venue:       "Main Auditorium", time: "10:00 AM", category: "Technical",
		organizer: "Computer Science Department",
		imageURL:  "https://images.unsplash.com/photo-1540575467063-178a50c2df87?w=800",
		inDays:    14, capacity: 200,
	},
	{
		title:       "Cultural Night",
		description: "Performances from the campus cultural groups, with dance, music, drama and traditional cuisine.",
		venue:       "Open Air Theatre", time: "6:00 PM", category: "Cultural",
		organizer: "Cultural Committee",
		imageURL:  "https://images.unsplash.com/photo-1492684223066-81342ee5ff30?w=800",
		inDays:    19, capacity: 500,
	},
	{
		title:       "Startup Summit",
		description: "Meet founders, learn about the startup ecosystem and pitch your ideas to investors.",
		venue:       "Conference Hall", time: "9:00 AM", category: "Business",
		organizer: "Entrepreneurship Cell",
		imageURL:  "https://images.unsplash.com/photo-1475721027785-f74eccf877e2?w=800",
		inDays:    24, capacity: 150,
	},
	{
		title:       "Sports Day",
		description: "Inter-department competition in cricket, football, basketball and athletics.",
		venue:       "Sports Complex", time: "8:00 AM", category: "Sports",
		organizer: "Sports Committee",
		imageURL:  "https://images.unsplash.com/photo-1461896836934-ffe607ba8211?w=800",
		inDays:    35, capacity: 300,
	},
	{
		title:       "AI & Machine Learning Workshop",
		description: "Hands-on workshop where you build your first ML model. Laptops required.",
		venue:       "Computer Lab A", time: "2:00 PM", category: "Workshop",
		organizer: "AI Club",
		imageURL:  "https://images.unsplash.com/photo-1555949963-aa79dcee981c?w=800",
		inDays:    40, capacity: 50,
	},
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}
	dsn := flag.String("dsn", cfg.DatabaseDSN, "SQLite DSN")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, err := db.Open(ctx, db.Config{DSN: *dsn})
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer store.Close()

	if err := seed(ctx, store, time.Now()); err != nil {
		store.Close()
		fatalf("seed: %v", err)
	}

	fmt.Println("Test credentials:")
	for _, u := range users {
		fmt.Printf("  %-6s %s / %s\n", u.role, u.email, u.password)
	}
}

func seed(ctx context.Context, store *db.DB, now time.Time) error {
	for _, u := range users {
		hash, err := auth.HashPassword(u.password)
		if err != nil {
			return err
		}
		created, err := store.CreateUser(ctx, models.NewUser{
			Email:        u.email,
			PasswordHash: hash,
			Name:         u.name,
			Role:         u.role,
			RollNumber:   models.OptionalString(u.rollNumber),
		})
		if errors.Is(err, apperr.ErrConflict) {
			slog.Info("user exists, skipping", "email", u.email)
			continue
		}
		if err != nil {
			return fmt.Errorf("create user %s: %w", u.email, err)
		}
		slog.Info("created user", "email", created.Email, "role", created.Role)
	}

	existing, err := store.ListEvents(ctx, models.EventQuery{Filter: "all", Limit: 1, Now: now})
	if err != nil {
		return err
	}
	if existing.Metadata.TotalEvents > 0 {
		slog.Info("events exist, skipping", "count", existing.Metadata.TotalEvents)
		return nil
	}

	day := now.UTC().Truncate(24 * time.Hour)
	for _, e := range events {
		created, err := store.CreateEvent(ctx, models.EventInput{
			Title:       e.title,
			Description: e.description,
			Venue:       e.venue,
			Date:        day.AddDate(0, 0, e.inDays),
			Time:        e.time,
			Capacity:    e.capacity,
			ImageURL:    models.OptionalString(e.imageURL),
			Category:    models.OptionalString(e.category),
			Organizer:   models.OptionalString(e.organizer),
		})
		if err != nil {
			return fmt.Errorf("create event %q: %w", e.title, err)
		}
		slog.Info("created event", "title", created.Title, "date", created.Date.Format("2006-01-02"))
	}
	return nil
}

func fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
