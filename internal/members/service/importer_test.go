package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/calybase/calybase-backend/internal/members/domain"
)

func newImporter(store *memoryStore, rec *fakeRecorder, batch int) *Importer {
	im := NewImporter(store, rec, ImportOptions{BatchSize: batch}, nil, nil)
	im.now = func() time.Time { return fixedNow }
	return im
}

func TestImport_CSVSemicolonWithAccentedHeaders(t *testing.T) {
	store := newMemoryStore()
	rec := &fakeRecorder{}
	file := "\xef\xbb\xbfNOM;Prénom;E-mail;Tél\n" +
		"Dupont;Jean;jean@example.com;0601020304\n" +
		";Marie;;\n" +
		"\n" +
		"Martin;Luc;;\n"

	res, err := newImporter(store, rec, 400).Import(context.Background(), "membres.csv", strings.NewReader(file), 0, "uid-1")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)

	require.Len(t, store.batches, 1)
	first := store.batches[0][0]
	assert.Equal(t, "Dupont", first.Nom)
	assert.Equal(t, "Jean", first.Prenom)
	assert.Equal(t, "jean@example.com", first.Email)
	assert.Equal(t, "0601020304", first.Telephone)
	assert.Equal(t, "uid-1", first.CreatedBy)
	assert.Equal(t, fixedNow, first.CreatedAt)

	require.Len(t, rec.imports, 1)
	assert.Equal(t, true, rec.imports[0]["success"])
	assert.Equal(t, 2, rec.imports[0]["rowCount"])
}

func TestImport_CSVCommaQuoted(t *testing.T) {
	store := newMemoryStore()
	file := "prenom,nom,phone\n\"Jean, Paul\",Dupont,06\n"

	res, err := newImporter(store, &fakeRecorder{}, 400).Import(context.Background(), "m.CSV", strings.NewReader(file), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, "Jean, Paul", store.batches[0][0].Prenom)
	assert.Equal(t, "06", store.batches[0][0].Telephone)
}

func TestImport_Chunks(t *testing.T) {
	store := newMemoryStore()
	var b strings.Builder
	b.WriteString("nom,prenom\n")
	for i := 0; i < 7; i++ {
		b.WriteString("N,P\n")
	}

	res, err := newImporter(store, &fakeRecorder{}, 3).Import(context.Background(), "m.csv", strings.NewReader(b.String()), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 7, res.Imported)

	sizes := make([]int, 0, len(store.batches))
	for _, batch := range store.batches {
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{3, 3, 1}, sizes)
}

func TestImport_TooLarge(t *testing.T) {
	store := newMemoryStore()
	rec := &fakeRecorder{}
	file := "nom,prenom\nA,a\nB,b\nC,c\n"

	_, err := newImporter(store, rec, 400).Import(context.Background(), "m.csv", strings.NewReader(file), 2, "")
	assert.ErrorIs(t, err, domain.ErrImportTooLarge)
	assert.Empty(t, store.batches)
	require.Len(t, rec.imports, 1)
	assert.Equal(t, false, rec.imports[0]["success"])
}

func TestImport_OversizedFileRejected(t *testing.T) {
	var b strings.Builder
	b.WriteString("nom,prenom,email\n")
	for b.Len() <= maxImportFileSize {
		b.WriteString("Dupont,Jeanne,jeanne.marie.dupont@example.com\n")
	}

	for _, filename := range []string{"membres.csv", "membres.xlsx"} {
		t.Run(filename, func(t *testing.T) {
			store := newMemoryStore()
			rec := &fakeRecorder{}

			res, err := newImporter(store, rec, 400).Import(context.Background(), filename, strings.NewReader(b.String()), 0, "")
			assert.ErrorIs(t, err, domain.ErrImportTooLarge)
			assert.Nil(t, res)
			assert.Empty(t, store.batches)
			require.Len(t, rec.imports, 1)
			assert.Equal(t, false, rec.imports[0]["success"])
		})
	}
}

func TestImport_FileAtSizeLimitIsRead(t *testing.T) {
	file := "nom,prenom\nA,a\n"
	file += strings.Repeat(" ", maxImportFileSize-len(file))

	res, err := newImporter(newMemoryStore(), &fakeRecorder{}, 400).Import(context.Background(), "m.csv", strings.NewReader(file), 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
}

func TestImport_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		wantErr  error
	}{
		{name: "unsupported extension", filename: "m.txt", content: "nom,prenom\nA,a\n", wantErr: domain.ErrUnsupportedFile},
		{name: "missing prenom column", filename: "m.csv", content: "nom,email\nA,a@x\n", wantErr: domain.ErrMissingColumns},
		{name: "header only", filename: "m.csv", content: "nom,prenom\n", wantErr: domain.ErrEmptyImport},
		{name: "empty file", filename: "m.csv", content: "", wantErr: domain.ErrEmptyImport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newImporter(newMemoryStore(), &fakeRecorder{}, 400).
				Import(context.Background(), tt.filename, strings.NewReader(tt.content), 0, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestImport_StoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.batchErr = errors.New("deadline exceeded")
	rec := &fakeRecorder{}

	res, err := newImporter(store, rec, 400).Import(context.Background(), "m.csv", strings.NewReader("nom,prenom\nA,a\n"), 0, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.batchErr)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, false, rec.imports[0]["success"])
}

func TestImport_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Nom", "Prénom", "Téléphone"},
		{"Dupont", "Jean", "0601"},
		{"Martin", "", "0602"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	store := newMemoryStore()
	res, err := newImporter(store, &fakeRecorder{}, 400).Import(context.Background(), "membres.xlsx", &buf, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "0601", store.batches[0][0].Telephone)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "prenom", normalizeHeader(" Prénom "))
	assert.Equal(t, "telephone", normalizeHeader("TÉLÉPHONE"))
	assert.Equal(t, ';', detectDelimiter([]byte("a;b,c;d\n1,2,3")))
	assert.Equal(t, ',', detectDelimiter([]byte("a,b\n1;2;3;4")))
}
