package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/classify"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/extract"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
)

const cbcReport = `COMPLETE BLOOD COUNT (CBC)
Laboratory: City Lab
Date: 15/03/2024
Hemoglobin: 14.2 g/dL
Hematocrit 42 %
Platelet count 250 10^3/uL`

type fakeText struct {
	text    string
	loadErr error
	ocrErr  error
}

func (f fakeText) Load(_ context.Context, src ocr.Source) (entity.RawDocument, error) {
	if f.loadErr != nil {
		return entity.RawDocument{}, f.loadErr
	}
	return entity.RawDocument{Data: []byte("%PDF-1.4"), Kind: entity.KindPDF, Filename: src.Filename, Origin: src.Filename}, nil
}

func (f fakeText) ExtractDocument(context.Context, entity.RawDocument) (entity.ExtractedText, error) {
	if f.ocrErr != nil {
		return entity.ExtractedText{Method: "pdf-ocr"}, f.ocrErr
	}
	out := entity.NewExtractedText([]string{f.text})
	out.Method = "pdf-ocr"
	return out, nil
}

type mockDocs struct {
	mock.Mock
}

func (m *mockDocs) Create(ctx context.Context, doc entity.Document) (entity.Document, error) {
	args := m.Called(ctx, doc)
	return args.Get(0).(entity.Document), args.Error(1)
}

func (m *mockDocs) Finish(ctx context.Context, id uuid.UUID, out repository.DocumentOutcome) error {
	return m.Called(ctx, id, out).Error(0)
}

type mockResults struct {
	mock.Mock
}

func (m *mockResults) Save(ctx context.Context, res entity.TestResult, documentID *uuid.UUID) (entity.TestResult, error) {
	args := m.Called(ctx, res, documentID)
	if fn, ok := args.Get(0).(func(entity.TestResult, *uuid.UUID) entity.TestResult); ok {
		return fn(res, documentID), args.Error(1)
	}
	return args.Get(0).(entity.TestResult), args.Error(1)
}

func newProcessor(t *testing.T, text TextExtractor, docs DocumentStore, results ResultStore) *Processor {
	t.Helper()
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	rules := extract.NewRuleBased(cat, nil)
	return NewProcessor(nil,
		NewOCRStage(text, docs, nil),
		NewParseStage(classify.NewClassifier(cat, 3, nil), extract.NewService(nil, rules, nil), normalize.New(cat, nil), results, docs, nil),
	)
}

func TestProcessWithoutPersistence(t *testing.T) {
	p := newProcessor(t, fakeText{text: cbcReport}, nil, nil)

	out := p.Process(context.Background(), ocr.Source{Filename: "cbc.pdf"})
	require.NoError(t, out.Err)
	assert.True(t, out.OK())
	assert.Equal(t, "CBC", out.Classification.Primary)
	assert.Equal(t, "CBC", out.TestType)
	assert.Equal(t, constants.StrategyRules, out.Strategy)
	assert.Equal(t, "pdf-ocr", out.Method)
	assert.Nil(t, out.DocumentID)

	require.Len(t, out.Results, 1)
	res := out.Results[0]
	assert.Equal(t, "CBC", res.TestTypeCode)
	assert.Equal(t, "City Lab", res.Source.LabName)
	assert.Equal(t, "2024-03-15", res.PerformedAt.Format("2006-01-02"))

	codes := map[string]bool{}
	for _, v := range res.Values {
		codes[v.ParameterCode] = true
	}
	assert.True(t, codes["HGB"])
	assert.True(t, codes["HCT"])
	assert.True(t, codes["PLT"])
}

func TestProcessPersistsAndFinishesDocument(t *testing.T) {
	docID := uuid.New()
	docs := &mockDocs{}
	docs.On("Create", mock.Anything, mock.MatchedBy(func(d entity.Document) bool {
		return d.Filename == "cbc.pdf" && d.Kind == entity.KindPDF
	})).Return(entity.Document{ID: docID}, nil)
	docs.On("Finish", mock.Anything, docID, repository.DocumentOutcome{
		Status:   constants.DocumentProcessed,
		Method:   "pdf-ocr",
		Strategy: constants.StrategyRules,
	}).Return(nil)

	results := &mockResults{}
	results.On("Save", mock.Anything, mock.Anything, &docID).
		Return(func(res entity.TestResult, id *uuid.UUID) entity.TestResult {
			res.ID = uuid.New()
			res.Source.DocumentID = id
			return res
		}, nil)

	p := newProcessor(t, fakeText{text: cbcReport}, docs, results)
	out := p.Process(context.Background(), ocr.Source{Filename: "cbc.pdf"})
	require.NoError(t, out.Err)
	require.NotNil(t, out.DocumentID)
	assert.Equal(t, docID, *out.DocumentID)
	require.Len(t, out.Results, 1)
	assert.NotEqual(t, uuid.Nil, out.Results[0].ID)

	docs.AssertExpectations(t)
	results.AssertNumberOfCalls(t, "Save", 1)
}

func TestProcessNoParametersStoresNothing(t *testing.T) {
	docID := uuid.New()
	docs := &mockDocs{}
	docs.On("Create", mock.Anything, mock.Anything).Return(entity.Document{ID: docID}, nil)
	docs.On("Finish", mock.Anything, docID, mock.MatchedBy(func(o repository.DocumentOutcome) bool {
		return o.Status == constants.DocumentFailed && o.Error != ""
	})).Return(nil)
	results := &mockResults{}

	p := newProcessor(t, fakeText{text: "Patient letter\nPlease call the clinic."}, docs, results)
	out := p.Process(context.Background(), ocr.Source{Filename: "letter.pdf"})

	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, common.ErrNoParametersExtracted)
	assert.Equal(t, constants.UnknownTest, out.Classification.Primary)
	assert.Empty(t, out.Results)
	docs.AssertExpectations(t)
	results.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessOCRFailureMarksDocumentFailed(t *testing.T) {
	docID := uuid.New()
	docs := &mockDocs{}
	docs.On("Create", mock.Anything, mock.Anything).Return(entity.Document{ID: docID}, nil)
	docs.On("Finish", mock.Anything, docID, mock.MatchedBy(func(o repository.DocumentOutcome) bool {
		return o.Status == constants.DocumentFailed && o.Method == "pdf-ocr"
	})).Return(nil)

	empty := common.NewExtractionError(common.ErrEmptyExtraction, "no text", nil)
	p := newProcessor(t, fakeText{ocrErr: empty}, docs, &mockResults{})
	out := p.Process(context.Background(), ocr.Source{Filename: "blank.pdf"})

	assert.ErrorIs(t, out.Err, common.ErrEmptyExtraction)
	assert.Equal(t, common.CategoryNoTestData, common.ErrorCategory(out.Err))
	require.NotNil(t, out.DocumentID)
	docs.AssertExpectations(t)
}

func TestProcessLoadFailureRecordsNothing(t *testing.T) {
	docs := &mockDocs{}
	unavailable := common.NewExtractionError(common.ErrSourceUnavailable, "404", nil)
	p := newProcessor(t, fakeText{loadErr: unavailable}, docs, &mockResults{})

	out := p.Process(context.Background(), ocr.Source{URL: "https://example.com/x.pdf"})
	assert.ErrorIs(t, out.Err, common.ErrSourceUnavailable)
	assert.Nil(t, out.DocumentID)
	docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProcessPersistFailureIsReported(t *testing.T) {
	results := &mockResults{}
	results.On("Save", mock.Anything, mock.Anything, mock.Anything).
		Return(entity.TestResult{}, errors.Join(common.ErrDatabase, errors.New("disk full")))

	p := newProcessor(t, fakeText{text: cbcReport}, nil, results)
	out := p.Process(context.Background(), ocr.Source{Filename: "cbc.pdf"})
	assert.ErrorIs(t, out.Err, common.ErrDatabase)
	assert.Empty(t, out.Results)
}

func TestProcessEndToEndWithSQLite(t *testing.T) {
	db, err := repository.OpenSQLite("file::memory:?_pragma=foreign_keys(1)", nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	require.NoError(t, db.Seed(ctx, cat))

	docs := repository.NewDocumentRepository(db, nil)
	results := repository.NewTestResultRepository(db, nil)
	p := newProcessor(t, fakeText{text: cbcReport}, docs, results)

	out := p.Process(ctx, ocr.Source{Filename: "cbc.pdf"})
	require.NoError(t, out.Err)
	require.NotNil(t, out.DocumentID)

	doc, err := docs.Get(ctx, *out.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.DocumentProcessed, doc.Status)

	history, err := results.History(ctx, "HGB", nil, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "14.2", history[0].RawValue)
	assert.Equal(t, "City Lab", history[0].LabName)

	text, err := p.RunOCROnly(ctx, ocr.Source{Filename: "cbc.pdf"})
	require.NoError(t, err)
	assert.Contains(t, text.Text, "Hemoglobin")
}
