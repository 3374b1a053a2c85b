package seed

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"time"

	"snapgram/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// GenerateOptions sizes a generated world.
type GenerateOptions struct {
	Users int
	Posts int
	// Seed makes the output reproducible. Zero picks a time-based seed.
	Seed int64
	// MaxDays bounds how far back generated creation times go.
	MaxDays int
	Now     time.Time
}

// Generate extends base with fake users and posts. Generated users follow a
// few existing users (both sides of every edge are recorded) and generated
// posts get likes or dislikes, never both, from random users.
func Generate(base World, opts GenerateOptions) World {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.MaxDays <= 0 {
		opts.MaxDays = 90
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	faker := gofakeit.New(seed)
	w := base.Clone()

	usernames := make(map[string]bool, len(w.Users)+opts.Users)
	for _, u := range w.Users {
		usernames[u.Username] = true
	}

	nextUserID := nextNumericID(func(yield func(string) bool) {
		for _, u := range w.Users {
			if !yield(u.ID) {
				return
			}
		}
	})
	for range opts.Users {
		id := strconv.Itoa(nextUserID)
		nextUserID++

		username := faker.Username() + strconv.Itoa(faker.Number(100, 999))
		for usernames[username] {
			username = faker.Username() + strconv.Itoa(faker.Number(100, 999))
		}
		usernames[username] = true

		u := models.User{
			ID:           id,
			Username:     username,
			Email:        fmt.Sprintf("%s@example.com", username),
			FullName:     faker.Name(),
			Bio:          faker.Sentence(6),
			ProfileImage: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", faker.UUID()),
			Followers:    []string{},
			Following:    []string{},
			IsCreator:    faker.Number(0, 3) > 0,
			Posts:        []string{},
			CreatedAt:    backdate(faker, opts.Now, opts.MaxDays*2),
		}

		if n := len(w.Users); n > 0 {
			for range faker.Number(1, min(3, n)) {
				ti := faker.Number(0, n-1)
				if w.Users[ti].HasFollower(u.ID) {
					continue
				}
				u = u.WithFollowing(w.Users[ti].ID)
				w.Users[ti] = w.Users[ti].WithFollower(u.ID)
			}
		}
		w.Users = append(w.Users, u)
	}

	creators := make([]int, 0, len(w.Users))
	for i, u := range w.Users {
		if u.IsCreator {
			creators = append(creators, i)
		}
	}
	if len(creators) == 0 {
		return w
	}

	nextPostID := nextNumericID(func(yield func(string) bool) {
		for _, p := range w.Posts {
			if !yield(p.ID) {
				return
			}
		}
	})
	for range opts.Posts {
		ai := creators[faker.Number(0, len(creators)-1)]
		author := w.Users[ai]
		id := strconv.Itoa(nextPostID)
		nextPostID++

		p, err := models.NewPost(id, author,
			fmt.Sprintf("https://picsum.photos/seed/%s/800/800", faker.UUID()),
			faker.Sentence(5),
			backdate(faker, opts.Now, opts.MaxDays),
		)
		if err != nil {
			continue
		}
		for _, u := range w.Users {
			switch faker.Number(0, 9) {
			case 0, 1, 2:
				p = p.ToggleLike(u.ID)
			case 3:
				p = p.ToggleDislike(u.ID)
			}
		}
		w.Posts = append(w.Posts, p)
		w.Users[ai] = w.Users[ai].WithPost(p.ID)
	}

	slices.SortStableFunc(w.Posts, func(a, b models.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return w
}

func backdate(faker *gofakeit.Faker, now time.Time, maxDays int) time.Time {
	d := time.Duration(faker.Number(0, maxDays))*24*time.Hour +
		time.Duration(faker.Number(0, 23))*time.Hour +
		time.Duration(faker.Number(0, 59))*time.Minute
	return now.Add(-d).Truncate(time.Second)
}

// nextNumericID returns one more than the largest numeric id seen, so
// generated records never collide with fixture ids.
func nextNumericID(ids iter.Seq[string]) int {
	next := 1
	for id := range ids {
		if n, err := strconv.Atoi(id); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}
