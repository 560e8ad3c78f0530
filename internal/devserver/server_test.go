package devserver

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"reviewsync/internal/domain/catalog"
	"reviewsync/internal/domain/submission"
	"reviewsync/internal/platform/session"
	"reviewsync/internal/transport/httpapi"
)

func login(t *testing.T, baseURL, email string) *session.Session {
	t.Helper()
	token, err := httpapi.Login(context.Background(), baseURL, email, "password")
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	sess, err := session.New(token, nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(sess.Close)
	return sess
}

func newEngine(t *testing.T, client *httpapi.Client, sess *session.Session) (*submission.Engine, chan submission.Snapshot) {
	t.Helper()
	snapCh := make(chan submission.Snapshot, 512)
	eng := submission.New(client, submission.Options{
		AutosaveDelay: time.Second,
		PageSize:      20,
		Adapter:       sess.Adapter(),
		BaseContext:   sess.Context(),
		OnChange:      func(s submission.Snapshot) { snapCh <- s },
	})
	t.Cleanup(eng.Close)
	return eng, snapCh
}

func waitSnap(t *testing.T, ch chan submission.Snapshot, cond func(submission.Snapshot) bool) submission.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-ch:
			if cond(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot condition")
		}
	}
}

func hydrated(s submission.Snapshot) bool {
	return s.DraftStatus != submission.SyncHydrating && s.KPIsFullyLoaded && s.ValuesFullyLoaded
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	if _, err := httpapi.Login(context.Background(), srv.URL, "priya@example.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
}

func TestDefinitionsPagination(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()
	sess := login(t, srv.URL, "priya@example.com")
	client := httpapi.NewClient(srv.URL, sess)

	page1, err := client.FetchDefinitionsPage(context.Background(), catalog.KindKPI, 2, "")
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1.Items) != 2 || page1.NextCursor == "" {
		t.Fatalf("expected partial first page with cursor, got %+v", page1)
	}
	page2, err := client.FetchDefinitionsPage(context.Background(), catalog.KindKPI, 2, page1.NextCursor)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if len(page2.Items) != 2 || page2.NextCursor != "" {
		t.Fatalf("expected exhausted second page, got %+v", page2)
	}
}

func TestFullSubmissionLifecycle(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()

	sess := login(t, srv.URL, "priya@example.com")
	client := httpapi.NewClient(srv.URL, sess)
	eng, snapCh := newEngine(t, client, sess)

	if err := eng.SetActiveMonth("2024-03"); err != nil {
		t.Fatalf("set active month: %v", err)
	}
	snap := waitSnap(t, snapCh, hydrated)
	if snap.Locked {
		t.Fatal("fresh month must not be locked")
	}
	if len(snap.MasterKPIs) != 4 {
		t.Fatalf("expected 4 master KPIs, got %d", len(snap.MasterKPIs))
	}

	if err := eng.SetSelfReviewText("Shipped the migration"); err != nil {
		t.Fatalf("self review: %v", err)
	}
	// K4 is Data-stream only, so Priya (Platform) needs K1..K3.
	for id, v := range map[string]float64{"K1": 4.2, "K2": 3.5, "K3": 5.0} {
		if err := eng.SetRating(catalog.KindKPI, id, v); err != nil {
			t.Fatalf("rate %s: %v", id, err)
		}
	}
	if err := eng.SetRating(catalog.KindValue, "V1", 4.0); err != nil {
		t.Fatalf("rate value: %v", err)
	}
	if err := eng.SetCertification("AWS SAA", "cred-123"); err != nil {
		t.Fatalf("cert: %v", err)
	}

	if err := eng.SaveDraftNow(context.Background()); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	if snap := eng.Snapshot(); !snap.CanFinalSubmit {
		t.Fatalf("expected eligible before submit: %+v", snap)
	}
	if err := eng.FinalSubmit(context.Background()); err != nil {
		t.Fatalf("final submit: %v", err)
	}
	snap = eng.Snapshot()
	if !snap.Locked || snap.Meta.SubmittedAt == nil {
		t.Fatalf("expected locked after submit, got %+v", snap.Meta)
	}
	if err := eng.SetSelfReviewText("tamper"); !errors.Is(err, submission.ErrLocked) {
		t.Fatalf("expected ErrLocked after submit, got %v", err)
	}
	if err := eng.FinalSubmit(context.Background()); !errors.Is(err, submission.ErrLocked) {
		t.Fatalf("expected ErrLocked on resubmit, got %v", err)
	}

	// A fresh hydration of the same month sees the server-side lock.
	remote, err := client.FetchMonthlySubmission(context.Background(), "2024-03")
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if remote == nil || !remote.Meta.Locked() {
		t.Fatalf("expected persisted locked submission, got %+v", remote)
	}
	if remote.SelfReview != "Shipped the migration" {
		t.Fatalf("draft fields lost on submit: %q", remote.SelfReview)
	}

	// Manager reject reopens the month for the employee.
	mgrSess := login(t, srv.URL, "arjun@example.com")
	mgrClient := httpapi.NewClient(srv.URL, mgrSess)
	if err := mgrClient.RejectSubmission(context.Background(), remote.Meta.ID); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if err := eng.SetActiveMonth("2024-03"); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}
	snap = waitSnap(t, snapCh, func(s submission.Snapshot) bool {
		return hydrated(s) && s.Meta.Status == submission.StatusNeedsReview
	})
	if snap.Locked {
		t.Fatal("expected reopened month to be editable")
	}
	if err := eng.SetSelfReviewText("Shipped the migration, with rollback notes"); err != nil {
		t.Fatalf("edit after reopen: %v", err)
	}
}

func TestRejectRequiresManager(t *testing.T) {
	srv := httptest.NewServer(New())
	defer srv.Close()
	sess := login(t, srv.URL, "priya@example.com")
	client := httpapi.NewClient(srv.URL, sess)

	err := client.RejectSubmission(context.Background(), "whatever")
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("expected 403 for employee reject, got %v", err)
	}
}
