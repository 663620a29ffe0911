package main

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"

	"fuwachat/internal/model"
	"fuwachat/internal/profile"
	"fuwachat/internal/session"
	"fuwachat/internal/store"
)

// seedOptions controls the size of the generated demo data.
type seedOptions struct {
	Participants int
	Friends      int
	Messages     int
}

type seedResult struct {
	Profiles      *profile.Static
	Conversations int
	Messages      int
}

// seed creates fake profiles with symmetric friendships and opens a
// conversation with a few messages for every friend pair.
func seed(ctx context.Context, st store.Adapter, faker *gofakeit.Faker, opts seedOptions) (seedResult, error) {
	ids := make([]string, opts.Participants)
	for i := range ids {
		ids[i] = fmt.Sprintf("u%03d", i+1)
	}

	friends := make(map[string]map[string]bool, len(ids))
	for _, id := range ids {
		friends[id] = make(map[string]bool)
	}
	for _, id := range ids {
		for len(friends[id]) < opts.Friends && len(friends[id]) < len(ids)-1 {
			other := ids[faker.Number(0, len(ids)-1)]
			if other == id {
				continue
			}
			friends[id][other] = true
			friends[other][id] = true
		}
	}

	res := seedResult{Profiles: profile.NewStatic()}
	for _, id := range ids {
		fs := make([]string, 0, len(friends[id]))
		for f := range friends[id] {
			fs = append(fs, f)
		}
		res.Profiles.Add(model.Profile{
			ID:       id,
			Name:     faker.Name(),
			Icon:     faker.ImageURL(128, 128),
			LastSeen: faker.PastDate().UTC(),
		}, fs...)
	}

	for _, a := range ids {
		for b := range friends[a] {
			if b < a {
				continue
			}
			sa := session.New(a, st)
			sb := session.New(b, st)
			if _, err := sa.OpenWith(ctx, b); err != nil {
				return res, fmt.Errorf("open %s with %s: %w", a, b, err)
			}
			if _, err := sb.OpenWith(ctx, a); err != nil {
				sa.Close()
				return res, fmt.Errorf("open %s with %s: %w", b, a, err)
			}
			res.Conversations++

			var last model.Message
			for i := 0; i < opts.Messages; i++ {
				s := sa
				if faker.Bool() {
					s = sb
				}
				replyTo := ""
				if last.ID != "" && faker.Number(1, 4) == 1 {
					replyTo = last.ID
				}
				m, err := s.Send(ctx, faker.Sentence(faker.Number(3, 12)), replyTo)
				if err != nil {
					sa.Close()
					sb.Close()
					return res, err
				}
				last = m
				res.Messages++
			}
			sa.Close()
			sb.Close()
		}
	}
	return res, nil
}
