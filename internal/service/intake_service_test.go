package service

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-bot/internal/model"
	"expense-bot/internal/storage"
)

type fakePortal struct {
	links []string
	draft model.Draft
	err   error
}

func (f *fakePortal) Parse(_ context.Context, link string) (model.Draft, error) {
	f.links = append(f.links, link)
	return f.draft, f.err
}

type fakeArchive struct {
	keys  []string
	types []string
	err   error
}

func (f *fakeArchive) Put(_ context.Context, key string, _ []byte, contentType string) error {
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return f.err
}

func newIntake(env *testEnv, portal *fakePortal, archive *fakeArchive) *IntakeService {
	var (
		p ReceiptParser
		a storage.Archive
	)
	if portal != nil {
		p = portal
	}
	if archive != nil {
		a = archive
	}
	return NewIntakeService(testLogger(), env.extractor, p, env.categories, a)
}

func qrPNG(t *testing.T, content string) []byte {
	t.Helper()
	matrix, err := qrcode.NewQRCodeWriter().Encode(content, gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, matrix))
	return buf.Bytes()
}

func TestFromTextUsesModel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	env.extractor.draft = model.Draft{
		Amount:   model.NumberOf(25),
		Category: "Coffee",
		Notes:    "cafea la birou",
		Items:    []model.DraftItem{{Name: "Taxi acasa", Price: model.NumberOf(60)}},
	}

	in, err := newIntake(env, &fakePortal{}, &fakeArchive{}).FromText(ctx, user.ID, "cafea 25 lei si taxi 60")
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, env.extractor.calls)
	assert.Equal(t, model.CategoryNames(model.DefaultCategories), env.extractor.categories)
	assert.Equal(t, model.SourceManual, in.Source)
	assert.False(t, in.FromPortal)
	assert.Equal(t, "Mâncare & Restaurante", in.Draft.Category)
	assert.Equal(t, "Transport", in.Draft.Items[0].Category)
}

func TestFromTextPortalLink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	portal := &fakePortal{draft: model.Draft{Amount: model.NumberOf(61), Vendor: "LINELLA", Category: "Alimente"}}

	in, err := newIntake(env, portal, &fakeArchive{}).FromText(ctx, user.ID, "bon: mev.sfs.md/receipt-verifier/J403001576/61.00/2/2025-02-11")
	require.NoError(t, err)
	assert.True(t, in.FromPortal)
	assert.Empty(t, env.extractor.calls)
	assert.Equal(t, []string{"https://mev.sfs.md/receipt-verifier/J403001576/61.00/2/2025-02-11"}, portal.links)
	assert.Equal(t, model.FallbackCategory, in.Draft.Category)

	portal.err = errors.New("502")
	_, err = newIntake(env, portal, &fakeArchive{}).FromText(ctx, user.ID, "https://mev.sfs.md/receipt-verifier/X/1/2/2025-01-01")
	assert.ErrorContains(t, err, "502")
}

func TestFromTextRejectsEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, err := newIntake(env, nil, nil).FromText(context.Background(), 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFromPhotoReadsQR(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	portal := &fakePortal{draft: model.Draft{Amount: model.NumberOf(6049), Vendor: "MAXIMUM"}}
	archive := &fakeArchive{}
	link := "https://mev.sfs.md/receipt-verifier/H902005680/6049.00/1941/2025-02-11"

	in, err := newIntake(env, portal, archive).FromPhoto(ctx, user.ID, qrPNG(t, link), "image/png")
	require.NoError(t, err)
	assert.True(t, in.FromPortal)
	assert.Equal(t, model.SourcePhoto, in.Source)
	assert.Equal(t, []string{link}, portal.links)
	assert.Empty(t, env.extractor.calls)

	require.Len(t, archive.keys, 1)
	assert.True(t, strings.HasPrefix(archive.keys[0], "receipts/"))
	assert.True(t, strings.HasSuffix(archive.keys[0], ".png"))
}

func TestFromPhotoFallsBackToVision(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	env.extractor.draft = model.Draft{Amount: model.NumberOf(12), Category: "Transport"}

	in, err := newIntake(env, &fakePortal{}, &fakeArchive{err: errors.New("s3 down")}).FromPhoto(ctx, user.ID, []byte("jpeg bytes"), "")
	require.NoError(t, err)
	assert.False(t, in.FromPortal)
	assert.Equal(t, []string{"photo"}, env.extractor.calls)
	assert.Equal(t, "Transport", in.Draft.Category)

	portal := &fakePortal{err: errors.New("portal down")}
	link := "https://mev.sfs.md/receipt-verifier/H902005680/6049.00/1941/2025-02-11"
	_, err = newIntake(env, portal, &fakeArchive{}).FromPhoto(ctx, user.ID, qrPNG(t, link), "image/png")
	require.NoError(t, err)
	assert.Len(t, portal.links, 1)
	assert.Equal(t, []string{"photo", "photo"}, env.extractor.calls)
}

func TestFromVoice(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	archive := &fakeArchive{}
	env.extractor.draft = model.Draft{Amount: model.NumberOf(100), Category: "farmacie"}

	in, err := newIntake(env, nil, archive).FromVoice(ctx, user.ID, []byte("ogg"), "")
	require.NoError(t, err)
	assert.Equal(t, model.SourceVoice, in.Source)
	assert.Equal(t, "Sănătate", in.Draft.Category)
	require.Len(t, archive.keys, 1)
	assert.True(t, strings.HasSuffix(archive.keys[0], ".ogg"))
	assert.Equal(t, []string{"audio/ogg"}, archive.types)

	env.extractor.err = errors.New("whisper failed")
	_, err = newIntake(env, nil, archive).FromVoice(ctx, user.ID, []byte("ogg"), "note.ogg")
	assert.ErrorContains(t, err, "whisper failed")
}
