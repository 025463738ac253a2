package attributes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/nodeagent/internal/nodeagent/core"
)

var watched = []string{KeyTitle, KeyVersion, KeySize, KeyChecksum, KeyChecksumAlgorithm, KeyURL, "interval"}

type fakeUpdater struct {
	current  core.FirmwareIdentity
	requests []core.FirmwareInfo
}

func (u *fakeUpdater) Current() core.FirmwareIdentity { return u.current }
func (u *fakeUpdater) Request(info core.FirmwareInfo) { u.requests = append(u.requests, info) }

type fakePlatform struct {
	handler    core.HandlerFunc
	response   []byte
	requestErr error
	keys       []string
}

func (p *fakePlatform) SubscribeAttributes(_ context.Context, h core.HandlerFunc) error {
	p.handler = h
	return nil
}

func (p *fakePlatform) RequestAttributes(ctx context.Context, keys []string) ([]byte, error) {
	p.keys = keys
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("request without deadline")
	}
	return p.response, nil
}

func newTestWatcher() (*Watcher, *fakePlatform, *fakeUpdater) {
	p := &fakePlatform{}
	u := &fakeUpdater{current: core.FirmwareIdentity{Title: "fwA", Version: "1.0"}}
	return NewWatcher(p, u, watched, 5*time.Second), p, u
}

func TestDecodeFlatPush(t *testing.T) {
	u, err := Decode([]byte(`{"fw_title":"fwA","fw_version":"2.0","fw_size":1024,
		"fw_checksum":"abc","fw_checksum_algorithm":"SHA256","interval":30,"unwatched":1}`), watched)
	require.NoError(t, err)

	assert.True(t, u.HasFirmware())
	assert.Equal(t, core.FirmwareInfo{
		FirmwareIdentity:  core.FirmwareIdentity{Title: "fwA", Version: "2.0"},
		Size:              1024,
		Checksum:          "abc",
		ChecksumAlgorithm: "SHA256",
	}, u.Firmware)
	assert.Equal(t, "30", string(u.Other["interval"]))
	assert.NotContains(t, u.Other, "unwatched")
}

func TestDecodeResponseEnvelope(t *testing.T) {
	u, err := Decode([]byte(`{"shared":{"fw_title":"fwA","fw_version":"2.0"}}`), watched)
	require.NoError(t, err)
	assert.Equal(t, "fwA", u.Firmware.Title)
	assert.Equal(t, "2.0", u.Firmware.Version)
}

func TestDecodeTypeMismatch(t *testing.T) {
	for _, payload := range []string{
		`{"fw_version":2.0}`,
		`{"fw_size":"big"}`,
		`{"fw_title":null}`,
		`{"shared":[1,2]}`,
		`not json`,
	} {
		_, err := Decode([]byte(payload), watched)
		assert.Error(t, err, payload)
	}
}

func TestHandleForwardsNewFirmware(t *testing.T) {
	w, _, u := newTestWatcher()

	err := w.Handle(context.Background(), []byte(`{"fw_title":"fwA","fw_version":"2.0","fw_size":10}`))
	require.NoError(t, err)
	require.Len(t, u.requests, 1)
	assert.Equal(t, "2.0", u.requests[0].Version)
	assert.EqualValues(t, 10, u.requests[0].Size)
}

func TestHandleIgnoresCurrentFirmware(t *testing.T) {
	w, _, u := newTestWatcher()

	require.NoError(t, w.Handle(context.Background(), []byte(`{"fw_title":"fwA","fw_version":"1.0"}`)))
	assert.Empty(t, u.requests)
}

func TestHandleIgnoresIncompleteIdentity(t *testing.T) {
	w, _, u := newTestWatcher()
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, []byte(`{"fw_title":"fwB"}`)))
	require.NoError(t, w.Handle(ctx, []byte(`{"fw_title":"","fw_version":"3.0"}`)))
	require.NoError(t, w.Handle(ctx, []byte(`{"interval":10}`)))
	assert.Empty(t, u.requests)
}

func TestHandleMalformedChangesNothing(t *testing.T) {
	w, _, u := newTestWatcher()

	err := w.Handle(context.Background(), []byte(`{"fw_title":"fwB","fw_version":7}`))
	assert.Error(t, err)
	assert.Empty(t, u.requests)
}

func TestSubscribeFetchesCurrentValues(t *testing.T) {
	w, p, u := newTestWatcher()
	p.response = []byte(`{"shared":{"fw_title":"fwA","fw_version":"2.0","fw_size":10}}`)

	require.NoError(t, w.Subscribe(context.Background()))
	assert.NotNil(t, p.handler)
	assert.Equal(t, watched, p.keys)
	assert.Len(t, u.requests, 1)
}

func TestSubscribeTimeout(t *testing.T) {
	w, p, u := newTestWatcher()
	p.requestErr = context.DeadlineExceeded

	err := w.Subscribe(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, u.requests)
}
