// Package convert maps REST wire payloads to domain models and back.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/neptus-sync/internal/model"
)

// Timestamp accepts the timestamp layouts the API has been seen to emit.
// Empty strings and null decode to the zero time.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTime(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// ParseTime parses s with the first matching layout; naive times are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unrecognised format %q", s)
}

// ReadingDTO is a reading as returned by GET /v1/leituras.
type ReadingDTO struct {
	ID          string    `json:"id"`
	TankID      string    `json:"id_tanque"`
	Turbidity   float64   `json:"turbidez"`
	Temperature *float64  `json:"temperatura,omitempty"`
	PH          *float64  `json:"ph,omitempty"`
	Oxygen      *float64  `json:"oxigenio,omitempty"`
	Ammonia     *float64  `json:"amonia,omitempty"`
	ColorImage  *string   `json:"imagem_cor,omitempty"`
	CreatedAt   Timestamp `json:"criado_em"`
	UpdatedAt   Timestamp `json:"atualizado_em"`
}

// ReadingsPage is the envelope of GET /v1/leituras.
type ReadingsPage struct {
	Total       int          `json:"total"`
	CurrentPage int          `json:"pagina_atual"`
	PerPage     int          `json:"itens_por_pagina"`
	TotalPages  int          `json:"total_paginas"`
	Readings    []ReadingDTO `json:"leituras"`
}

// TankDTO is a tank as returned by GET /v1/super/tanques/{propertyId}.
type TankDTO struct {
	ID         string    `json:"id"`
	UserID     string    `json:"id_usuario"`
	PropertyID string    `json:"id_propriedade"`
	Name       string    `json:"nome"`
	Area       float64   `json:"area_tanque"`
	FishType   string    `json:"tipo_peixe"`
	FishWeight float64   `json:"peso_peixe"`
	FishCount  int       `json:"qtd_peixe"`
	Active     bool      `json:"ativo"`
	CreatedAt  Timestamp `json:"criado_em"`
	UpdatedAt  Timestamp `json:"atualizado_em"`
}

// TanksPage is the envelope of GET /v1/super/tanques/{propertyId}.
type TanksPage struct {
	Total       int       `json:"total"`
	CurrentPage int       `json:"pagina_atual"`
	PerPage     int       `json:"itens_por_pagina"`
	TotalPages  int       `json:"total_paginas"`
	Tanks       []TankDTO `json:"tanques"`
}

// PropertyDTO is a property as returned by GET /v1/super/propriedades.
type PropertyDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"nome"`
	OwnerID   string    `json:"proprietario_id"`
	OwnerName string    `json:"proprietario_nome"`
	UserCount int       `json:"total_usuarios"`
	CreatedAt Timestamp `json:"criado_em"`
	UpdatedAt Timestamp `json:"atualizado_em"`
}

// PropertiesPage is the envelope of GET /v1/super/propriedades.
type PropertiesPage struct {
	Total       int           `json:"total"`
	CurrentPage int           `json:"pagina_atual"`
	PerPage     int           `json:"itens_por_pagina"`
	TotalPages  int           `json:"total_paginas"`
	Properties  []PropertyDTO `json:"propriedades"`
}

// BatchReadingDTO is one element of the POST /v1/leituras/lote body.
// The local id is not sent; the server assigns its own.
type BatchReadingDTO struct {
	TankID      string   `json:"tanque_id"`
	Turbidity   float64  `json:"turbidez"`
	Temperature *float64 `json:"temperatura,omitempty"`
	PH          *float64 `json:"ph,omitempty"`
	Oxygen      *float64 `json:"oxigenio,omitempty"`
	Ammonia     *float64 `json:"amonia,omitempty"`
	ColorImage  *string  `json:"imagem_cor,omitempty"`
}

// ErrorBody is the API error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ConflictBody is the 409 response of the batch endpoint.
type ConflictBody struct {
	ErrorBody
	Rejected []BatchReadingDTO `json:"leituras_erradas"`
}

// RejectedTanks returns the distinct rejected tank ids in response order.
func (c ConflictBody) RejectedTanks() []string {
	seen := make(map[string]struct{}, len(c.Rejected))
	out := make([]string, 0, len(c.Rejected))
	for _, r := range c.Rejected {
		if r.TankID == "" {
			continue
		}
		if _, ok := seen[r.TankID]; ok {
			continue
		}
		seen[r.TankID] = struct{}{}
		out = append(out, r.TankID)
	}
	return out
}

// ToReading converts a downloaded reading. PropertyID is set by the caller.
func ToReading(d ReadingDTO) model.Reading {
	return model.Reading{
		ID:          d.ID,
		TankID:      d.TankID,
		Turbidity:   d.Turbidity,
		Temperature: d.Temperature,
		PH:          d.PH,
		Oxygen:      d.Oxygen,
		Ammonia:     d.Ammonia,
		ColorImage:  d.ColorImage,
		CreatedAt:   d.CreatedAt.Time,
		UpdatedAt:   d.UpdatedAt.Time,
		SyncStatus:  model.StateSynced,
	}
}

// ToTank converts a downloaded tank.
func ToTank(d TankDTO) model.Tank {
	return model.Tank{
		ID:         d.ID,
		UserID:     d.UserID,
		PropertyID: d.PropertyID,
		Name:       d.Name,
		Area:       d.Area,
		FishType:   d.FishType,
		FishWeight: d.FishWeight,
		FishCount:  d.FishCount,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt.Time,
		UpdatedAt:  d.UpdatedAt.Time,
		SyncStatus: model.StateSynced,
	}
}

// ToProperty converts a downloaded property.
func ToProperty(d PropertyDTO) model.Property {
	return model.Property{
		ID:        d.ID,
		Name:      d.Name,
		OwnerID:   d.OwnerID,
		OwnerName: d.OwnerName,
		UserCount: d.UserCount,
		CreatedAt: d.CreatedAt.Time,
		UpdatedAt: d.UpdatedAt.Time,
	}
}

// ToBatchReading converts a local reading for upload.
func ToBatchReading(r model.Reading) BatchReadingDTO {
	return BatchReadingDTO{
		TankID:      r.TankID,
		Turbidity:   r.Turbidity,
		Temperature: r.Temperature,
		PH:          r.PH,
		Oxygen:      r.Oxygen,
		Ammonia:     r.Ammonia,
		ColorImage:  r.ColorImage,
	}
}

// ToBatch converts local readings for upload, preserving order.
func ToBatch(rs []model.Reading) []BatchReadingDTO {
	out := make([]BatchReadingDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToBatchReading(r))
	}
	return out
}

// ReadingPage converts a readings envelope into a domain page.
func ReadingPage(p ReadingsPage) model.Page[model.Reading] {
	items := make([]model.Reading, 0, len(p.Readings))
	for _, d := range p.Readings {
		items = append(items, ToReading(d))
	}
	return model.Page[model.Reading]{Items: items, CurrentPage: p.CurrentPage, TotalPages: p.TotalPages, TotalCount: p.Total, PerPage: p.PerPage}
}

// TankPage converts a tanks envelope into a domain page.
func TankPage(p TanksPage) model.Page[model.Tank] {
	items := make([]model.Tank, 0, len(p.Tanks))
	for _, d := range p.Tanks {
		items = append(items, ToTank(d))
	}
	return model.Page[model.Tank]{Items: items, CurrentPage: p.CurrentPage, TotalPages: p.TotalPages, TotalCount: p.Total, PerPage: p.PerPage}
}

// PropertyPage converts a properties envelope into a domain page.
func PropertyPage(p PropertiesPage) model.Page[model.Property] {
	items := make([]model.Property, 0, len(p.Properties))
	for _, d := range p.Properties {
		items = append(items, ToProperty(d))
	}
	return model.Page[model.Property]{Items: items, CurrentPage: p.CurrentPage, TotalPages: p.TotalPages, TotalCount: p.Total, PerPage: p.PerPage}
}
