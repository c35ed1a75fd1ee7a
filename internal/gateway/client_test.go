package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/neptus-sync/internal/errs"
	"github.com/and161185/neptus-sync/internal/model"
)

const testToken = "tok-123"

func newClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	return New(Options{
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		RetryCount: retries,
		RetryWait:  time.Millisecond,
		Logger:     zaptest.NewLogger(t),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// readingsServer serves total readings for tank t1 in pages of perPage.
func readingsServer(t *testing.T, total int, calls *atomic.Int32, failPage int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/v1/leituras" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": "UNAUTHORIZED", "message": "token invalido", "status": 401})
			return
		}
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		perPage, _ := strconv.Atoi(q.Get("per_page"))
		if q.Get("tanque_id") != "t1" || page < 1 || perPage < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": "BAD_REQUEST", "message": "parametros", "status": 400})
			return
		}
		if page == failPage {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"code": "INTERNAL", "message": "falhou", "status": 500})
			return
		}
		pages := (total + perPage - 1) / perPage
		items := []map[string]any{}
		for i := (page - 1) * perPage; i < page*perPage && i < total; i++ {
			items = append(items, map[string]any{
				"id": fmt.Sprintf("r%03d", i), "id_tanque": "t1", "turbidez": float64(i),
				"criado_em": "2025-02-10T14:30:00Z", "atualizado_em": "2025-02-10T14:30:00Z",
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total": total, "pagina_atual": page, "itens_por_pagina": perPage, "total_paginas": pages, "leituras": items,
		})
	}))
}

func TestFetchReadings_AggregatesAllPages(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 107, &calls, 0)
	defer srv.Close()
	c := newClient(t, srv, 0)

	got, err := c.FetchReadings(context.Background(), testToken, "t1")
	require.NoError(t, err)
	require.Len(t, got, 107)
	require.EqualValues(t, 3, calls.Load())

	seen := map[string]bool{}
	for i, r := range got {
		require.False(t, seen[r.ID], "duplicate %s", r.ID)
		seen[r.ID] = true
		require.Equal(t, fmt.Sprintf("r%03d", i), r.ID, "items keep server page order")
		require.Equal(t, model.StateSynced, r.SyncStatus)
	}
}

func TestFetchReadings_SinglePageMakesOneCall(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 7, &calls, 0)
	defer srv.Close()
	c := newClient(t, srv, 0)

	got, err := c.FetchReadings(context.Background(), testToken, "t1")
	require.NoError(t, err)
	require.Len(t, got, 7)
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchReadings_EmptyTank(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 0, &calls, 0)
	defer srv.Close()
	c := newClient(t, srv, 0)

	got, err := c.FetchReadings(context.Background(), testToken, "t1")
	require.NoError(t, err)
	require.Empty(t, got)
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchReadings_PageFailureAborts(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 107, &calls, 3)
	defer srv.Close()
	c := newClient(t, srv, 0)

	got, err := c.FetchReadings(context.Background(), testToken, "t1")
	require.Error(t, err)
	require.Nil(t, got)

	var te *errs.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusInternalServerError, te.Status)
	require.Equal(t, "INTERNAL", te.Code)
	require.Equal(t, "falhou", te.Message)
}

func TestFetch_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 10, &calls, 0)
	defer srv.Close()
	c := newClient(t, srv, 0)

	_, err := c.FetchReadings(context.Background(), "wrong", "t1")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestFetch_NoToken(t *testing.T) {
	var calls atomic.Int32
	srv := readingsServer(t, 10, &calls, 0)
	defer srv.Close()
	c := newClient(t, srv, 0)

	_, err := c.FetchReadings(context.Background(), "", "t1")
	require.ErrorIs(t, err, errs.ErrNoCredentials)
	_, err = c.PostBatch(context.Background(), "", []model.Reading{{TankID: "t1"}})
	require.ErrorIs(t, err, errs.ErrNoCredentials)
	require.Zero(t, calls.Load())
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(Options{BaseURL: url, Timeout: time.Second, Logger: zaptest.NewLogger(t)})
	_, err := c.FetchTanks(context.Background(), testToken, "p1")
	require.Error(t, err)

	var te *errs.TransportError
	require.True(t, errors.As(err, &te))
	require.Zero(t, te.Status)
}

func TestFetchTanks_PathAndPaging(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("page"))
		require.Equal(t, "50", r.URL.Query().Get("per_page"))
		writeJSON(w, http.StatusOK, map[string]any{
			"total": 1, "pagina_atual": 1, "itens_por_pagina": 50, "total_paginas": 1,
			"tanques": []map[string]any{{
				"id": "t1", "id_usuario": "u1", "id_propriedade": "p 1", "nome": "Viveiro 1", "area_tanque": 10.5,
				"tipo_peixe": "tilapia", "peso_peixe": 0.5, "qtd_peixe": 100, "ativo": true,
				"criado_em": "2025-01-01T00:00:00Z", "atualizado_em": "2025-01-01T00:00:00Z",
			}},
		})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	ts, err := c.FetchTanks(context.Background(), testToken, "p 1")
	require.NoError(t, err)
	require.Len(t, ts, 1)
	require.Equal(t, "Viveiro 1", ts[0].Name)
	require.Equal(t, 100, ts[0].FishCount)
	require.Equal(t, []string{"/v1/super/tanques/p 1"}, paths)
}

func TestFetchProperties_UsesPortugueseQueryKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/super/propriedades", r.URL.Path)
		page, _ := strconv.Atoi(r.URL.Query().Get("pagina_atual"))
		require.Equal(t, "10", r.URL.Query().Get("itens_por_pagina"))
		writeJSON(w, http.StatusOK, map[string]any{
			"total": 11, "pagina_atual": page, "itens_por_pagina": 10, "total_paginas": 2,
			"propriedades": []map[string]any{{"id": fmt.Sprintf("p%d", page), "nome": "Fazenda", "total_usuarios": 2}},
		})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	ps, err := c.FetchProperties(context.Background(), testToken)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	require.Equal(t, "p1", ps[0].ID)
	require.Equal(t, "p2", ps[1].ID)
}

func TestFetch_RetriesReadsOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": "UNAVAILABLE", "message": "tente novamente", "status": 503})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": 0, "pagina_atual": 1, "itens_por_pagina": 50, "total_paginas": 0, "tanques": []any{}})
	}))
	defer srv.Close()
	c := newClient(t, srv, 2)

	ts, err := c.FetchTanks(context.Background(), testToken, "p1")
	require.NoError(t, err)
	require.Empty(t, ts)
	require.EqualValues(t, 2, calls.Load())
}

type batchItem struct {
	TankID    string   `json:"tanque_id"`
	Turbidity float64  `json:"turbidez"`
	PH        *float64 `json:"ph"`
}

func TestPostBatch_Created(t *testing.T) {
	var got []batchItem
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/leituras/lote", r.URL.Path)
		require.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		writeJSON(w, http.StatusCreated, map[string]any{"code": "CREATED", "message": "ok", "status": 201})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	ph := 7.0
	out, err := c.PostBatch(context.Background(), testToken, []model.Reading{
		{ID: "l1", TankID: "A", Turbidity: 1, PH: &ph},
		{ID: "l2", TankID: "B", Turbidity: 2},
	})
	require.NoError(t, err)
	require.Empty(t, out.RejectedTanks)
	require.Len(t, got, 2)
	require.Equal(t, "A", got[0].TankID)
	require.Equal(t, 7.0, *got[0].PH)
	require.Nil(t, got[1].PH)
}

func TestPostBatch_ConflictReturnsRejectedTanks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"code": "CONFLICT", "message": "tanques invalidos", "status": 409,
			"leituras_erradas": []map[string]any{{"tanque_id": "B", "turbidez": 2}},
		})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	out, err := c.PostBatch(context.Background(), testToken, []model.Reading{
		{TankID: "A"}, {TankID: "B"}, {TankID: "C"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, out.RejectedTanks)
}

func TestPostBatch_FatalStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"code": "UNAVAILABLE", "message": "manutencao", "status": 503})
	}))
	defer srv.Close()
	c := newClient(t, srv, 3)

	_, err := c.PostBatch(context.Background(), testToken, []model.Reading{{TankID: "A"}})
	var te *errs.TransportError
	require.True(t, errors.As(err, &te))
	require.Equal(t, http.StatusServiceUnavailable, te.Status)
	require.Equal(t, "manutencao", te.Message)
	require.EqualValues(t, 1, calls.Load(), "batch upload must not be retried")
}

func TestPostBatch_UnexpectedSuccessStatusIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	defer srv.Close()
	c := newClient(t, srv, 0)

	_, err := c.PostBatch(context.Background(), testToken, []model.Reading{{TankID: "A"}})
	require.True(t, errs.IsTransport(err))
}

func TestPostBatch_EmptySkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()
	c := newClient(t, srv, 0)

	out, err := c.PostBatch(context.Background(), testToken, nil)
	require.NoError(t, err)
	require.Empty(t, out.RejectedTanks)
	require.Zero(t, calls.Load())
}
