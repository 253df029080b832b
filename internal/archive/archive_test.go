package archive

import (
	"testing"
	"time"

	"github.com/harunnryd/ivrbridge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shortLockConfig(timeout time.Duration) *FileLockConfig {
	retry := 10 * time.Millisecond
	maxRetry := int(timeout / retry)
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: maxRetry,
	}
}

func endedSession(callID string, status session.Status, start time.Time, d time.Duration) session.Session {
	end := start.Add(d)
	return session.Session{
		CallID:    callID,
		CallerRef: "+911234567890",
		StartTime: start,
		EndTime:   &end,
		Status:    status,
		Interactions: []session.Interaction{
			{ID: "01", Timestamp: start, Speaker: session.SpeakerUser, Message: "book a flight", InputKind: session.InputSpeech},
		},
		Context:       session.Values{"pending_action": session.String("collect_origin")},
		CurrentIntent: "book_flight",
	}
}

func TestArchive_RecordsEndedCalls(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	a, err := Open(dir, WithClock(func() time.Time { return now }), WithLockConfig(shortLockConfig(200*time.Millisecond)))
	require.NoError(t, err)
	a.Start()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a.Record(endedSession("CA1", session.StatusCompleted, start, 90*time.Second))
	a.Record(endedSession("CA2", session.StatusTransferred, start, time.Minute))
	a.Stop()
	assert.False(t, a.IsRunning())

	records, err := ReadDay(dir, start)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CA1", records[0].CallID)
	assert.Equal(t, 90.0, records[0].DurationSeconds)
	assert.Equal(t, "book_flight", records[0].CurrentIntent)
	require.Len(t, records[0].Interactions, 1)
	pending, _ := records[0].Context.StringValue("pending_action")
	assert.Equal(t, "collect_origin", pending)

	idx, err := ReadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Total)
	assert.Equal(t, 1, idx.ByStatus[session.StatusCompleted])
	assert.Equal(t, 1, idx.ByStatus[session.StatusTransferred])
	assert.Equal(t, []string{"20260301"}, idx.Days())
}

func TestArchive_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a, err := Open(dir, WithLockConfig(shortLockConfig(200*time.Millisecond)))
	require.NoError(t, err)
	a.Start()
	a.Record(endedSession("CA1", session.StatusFailed, start, time.Second))
	a.Stop()

	b, err := Open(dir, WithLockConfig(shortLockConfig(200*time.Millisecond)))
	require.NoError(t, err)
	b.Start()
	b.Record(endedSession("CA2", session.StatusFailed, start.Add(24*time.Hour), time.Second))
	b.Stop()

	idx, err := ReadIndex(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Total)
	assert.Equal(t, 2, idx.ByStatus[session.StatusFailed])
	assert.Equal(t, []string{"20260301", "20260302"}, idx.Days())
}

func TestArchive_SecondWriterIsLockedOut(t *testing.T) {
	dir := t.TempDir()

	a, err := Open(dir, WithLockConfig(shortLockConfig(200*time.Millisecond)))
	require.NoError(t, err)
	defer a.Stop()

	_, err = Open(dir, WithLockConfig(shortLockConfig(50*time.Millisecond)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another instance")
}

func TestArchive_HookFromStore(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a, err := Open(dir, WithLockConfig(shortLockConfig(200*time.Millisecond)))
	require.NoError(t, err)
	a.Start()

	store := session.NewStore(session.WithClock(func() time.Time { return clock }))
	store.OnEnd(a.Hook())
	store.Create("CA1", "+1")
	store.AddInteraction("CA1", session.SpeakerUser, "agent", session.InputSpeech)
	require.True(t, store.End("CA1", session.StatusTransferred))
	a.Stop()

	records, err := ReadDay(dir, clock)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, session.StatusTransferred, records[0].Status)
	assert.NotNil(t, records[0].EndTime)
}

func TestArchive_TranscriptLimitTrimsOnlyRecord(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a, err := Open(dir, WithLockConfig(shortLockConfig(200*time.Millisecond)), WithTranscriptLimit(2))
	require.NoError(t, err)
	a.Start()

	sess := endedSession("CA1", session.StatusCompleted, start, time.Minute)
	sess.Interactions = []session.Interaction{
		{ID: "01", Message: "book a flight"},
		{ID: "02", Message: "domestic"},
		{ID: "03", Message: "Mumbai"},
	}
	a.Record(sess)
	a.Stop()

	require.Len(t, sess.Interactions, 3)

	records, err := ReadDay(dir, start)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].InteractionCount)
	require.Len(t, records[0].Interactions, 2)
	assert.Equal(t, "domestic", records[0].Interactions[0].Message)
	assert.Equal(t, "Mumbai", records[0].Interactions[1].Message)
}

func TestReadDay_MissingFile(t *testing.T) {
	records, err := ReadDay(t.TempDir(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFileLock_Unlock(t *testing.T) {
	lock, err := NewFileLock(t.TempDir(), shortLockConfig(100*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, lock.IsLocked())
	lock.Unlock()
	assert.False(t, lock.IsLocked())
	lock.Unlock()
}
