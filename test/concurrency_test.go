package test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"linepaste/pkg/domain"
)

func TestConcurrentCreates(t *testing.T) {
	c := createTestConfig()
	pasteSvc := createTestService(t, c, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	uids := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p, err := pasteSvc.Create(ctx, domain.CreateParams{
				Content: fmt.Sprintf("concurrent content %d", n),
			})
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			uids <- p.UID
		}(i)
	}
	wg.Wait()
	close(uids)

	seen := make(map[string]struct{})
	for uid := range uids {
		if _, dup := seen[uid]; dup {
			t.Fatalf("duplicate uid handed out: %s", uid)
		}
		seen[uid] = struct{}{}
	}
	if len(seen) != 100 {
		t.Errorf("expected 100 distinct pastes, got %d", len(seen))
	}
}

func TestConcurrentCommentsOnOnePaste(t *testing.T) {
	c := createTestConfig()
	pasteSvc := createTestService(t, c, nil)
	ctx := context.Background()

	paste, err := pasteSvc.Create(ctx, domain.CreateParams{Content: "a\nb\nc"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const commenters = 40
	var wg sync.WaitGroup
	for i := 0; i < commenters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := pasteSvc.AddComment(ctx, paste.UID, domain.AddCommentParams{
				Line:    1 + n%3,
				Comment: fmt.Sprintf("comment %d", n),
				Name:    fmt.Sprintf("user%d", n),
			})
			if err != nil {
				t.Errorf("AddComment failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	view, err := pasteSvc.Get(ctx, paste.UID, false)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(view.Comments) != commenters {
		t.Errorf("lost comments under concurrency: got %d, want %d", len(view.Comments), commenters)
	}
}

func TestConcurrentReadsWhileCommenting(t *testing.T) {
	c := createTestConfig()
	pasteSvc := createTestService(t, c, nil)
	ctx := context.Background()

	paste, err := pasteSvc.Create(ctx, domain.CreateParams{Content: "x\ny\nz"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := pasteSvc.AddComment(ctx, paste.UID, domain.AddCommentParams{
				Line: 1, Comment: "c", Name: fmt.Sprintf("w%d", n),
			})
			if err != nil {
				t.Errorf("AddComment failed: %v", err)
			}
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pasteSvc.Get(ctx, paste.UID, true); err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
