package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// ErrValidation marks malformed required input; handlers map it to a 400.
var ErrValidation = errors.New("payload inválido")

// ChecklistReport is the fully normalized PGR checklist, built once per
// request and read-only afterwards.
type ChecklistReport struct {
	Key      string
	Revision Revision
	Items    []ChecklistItem
}

// Revision carries the report metadata block.
type Revision struct {
	Placa               string
	KM                  string
	TipoEvento          string
	Descricao           string
	ObservacaoValidacao string
	Colaborador         string
	Validador           string
	RunDate             string
	DataValidacao       string
}

// ChecklistItem is one inspected item with its evidence images.
type ChecklistItem struct {
	Label    string
	Conforme bool
	Problema string
	Tags     []Tag
	Images   []ImageRef
}

// Tag is a key/value badge attached to an item.
type Tag struct {
	Key   string
	Value string
}

// Label renders the badge text for the tag.
func (t Tag) Label() string {
	if t.Key == "" {
		return t.Value
	}
	if t.Value == "" {
		return t.Key
	}
	return t.Key + ": " + t.Value
}

// ImageRef addresses one evidence image by storage path and/or URL.
type ImageRef struct {
	Path        string
	URL         string
	Annotations []Annotation
}

// AnnotationKind is the normalized overlay shape variant.
type AnnotationKind int

const (
	KindBox AnnotationKind = iota
	KindCircle
	KindPoint
)

// Coords is the annotation geometry. Values at or below 1 are fractions of
// the image dimensions, larger values are pixels.
type Coords struct {
	X float64
	Y float64
	W float64
	H float64
}

// Annotation is one normalized overlay record.
type Annotation struct {
	Kind        AnnotationKind
	Color       color.RGBA
	Coords      Coords
	Description string
}

var palette = map[string]color.RGBA{
	"red":    {R: 214, G: 0, B: 0, A: 255},
	"green":  {R: 36, G: 160, B: 42, A: 255},
	"blue":   {R: 30, G: 80, B: 214, A: 255},
	"yellow": {R: 230, G: 200, B: 0, A: 255},
	"orange": {R: 235, G: 130, B: 20, A: 255},
	"black":  {R: 0, G: 0, B: 0, A: 255},
	"white":  {R: 255, G: 255, B: 255, A: 255},
}

type rawPayload struct {
	Original json.RawMessage `json:"original"`
}

type rawOriginal struct {
	Itens   []rawItem   `json:"itens"`
	Revisao rawRevision `json:"revisao"`
}

type rawRevision struct {
	Placa               string `json:"placa"`
	KM                  any    `json:"km"`
	TipoEvento          string `json:"tipo_evento"`
	Tipo                string `json:"tipo"`
	Descricao           string `json:"descricao"`
	ObservacaoValidacao string `json:"observacao_validacao"`
	Name                string `json:"name"`
	Validador           string `json:"validador"`
	RunDate             string `json:"runDate"`
	DataRevisao         string `json:"data_revisao"`
	DataValidacao       string `json:"data_validacao"`
}

type rawItem struct {
	Item      string     `json:"item"`
	Label     string     `json:"label"`
	Conforme  any        `json:"conforme"`
	Situation any        `json:"situation"`
	Problema  string     `json:"problema_identificado"`
	Tags      []rawTag   `json:"tags"`
	Imagens   []rawImage `json:"imagens"`
}

type rawTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type rawImage struct {
	ImgPath     string          `json:"img_path"`
	ImgURL      string          `json:"img_url"`
	URL         string          `json:"url"`
	Annotations []rawAnnotation `json:"annotations"`
}

type rawAnnotation struct {
	AnnotationType string          `json:"annotationType"`
	Type           string          `json:"type"`
	Color          string          `json:"color"`
	Coordinates    json.RawMessage `json:"coordinates"`
	Description    string          `json:"description"`
}

// ParseReport decodes the request body into the normalized checklist model.
// A missing "original" yields an empty report; a non-object "original" or
// undecodable body is a validation failure.
func ParseReport(key string, body []byte) (*ChecklistReport, error) {
	var payload rawPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: corpo JSON malformado: %v", ErrValidation, err)
	}

	original := rawOriginal{}
	if len(payload.Original) > 0 && string(payload.Original) != "null" {
		if err := json.Unmarshal(payload.Original, &original); err != nil {
			return nil, fmt.Errorf("%w: 'original' deve ser um objeto", ErrValidation)
		}
	}

	report := &ChecklistReport{
		Key:      key,
		Revision: normalizeRevision(original.Revisao),
		Items:    make([]ChecklistItem, 0, len(original.Itens)),
	}
	for _, it := range original.Itens {
		report.Items = append(report.Items, normalizeItem(it))
	}
	return report, nil
}

func normalizeRevision(r rawRevision) Revision {
	tipo := r.TipoEvento
	if tipo == "" {
		tipo = r.Tipo
	}
	if tipo == "" {
		tipo = "PGR"
	}
	runDate := r.RunDate
	if runDate == "" {
		runDate = r.DataRevisao
	}
	return Revision{
		Placa:               orNA(r.Placa),
		KM:                  orNA(anyToString(r.KM)),
		TipoEvento:          tipo,
		Descricao:           strings.TrimSpace(orNA(r.Descricao)),
		ObservacaoValidacao: strings.TrimSpace(orNA(r.ObservacaoValidacao)),
		Colaborador:         orNA(r.Name),
		Validador:           orNA(r.Validador),
		RunDate:             runDate,
		DataValidacao:       r.DataValidacao,
	}
}

func normalizeItem(it rawItem) ChecklistItem {
	label := it.Item
	if label == "" {
		label = it.Label
	}

	conforme := it.Conforme
	if conforme == nil && it.Situation != nil {
		conforme = it.Situation
	}

	problema := strings.TrimSpace(it.Problema)
	if problema == "" {
		problema = "Nenhum"
	}
	problema = strings.ReplaceAll(problema, "\n", " ")

	item := ChecklistItem{
		Label:    label,
		Conforme: ToConforme(conforme) == 1,
		Problema: problema,
	}
	for _, t := range it.Tags {
		if t.Key == "" && t.Value == "" {
			continue
		}
		item.Tags = append(item.Tags, Tag(t))
	}
	for _, img := range it.Imagens {
		item.Images = append(item.Images, normalizeImage(img))
	}
	return item
}

func normalizeImage(img rawImage) ImageRef {
	u := img.ImgURL
	if u == "" {
		u = img.URL
	}
	ref := ImageRef{Path: img.ImgPath, URL: u}
	for _, a := range img.Annotations {
		ref.Annotations = append(ref.Annotations, normalizeAnnotation(a))
	}
	return ref
}

func normalizeAnnotation(a rawAnnotation) Annotation {
	kind := a.AnnotationType
	if kind == "" {
		kind = a.Type
	}
	return Annotation{
		Kind:        normalizeKind(kind),
		Color:       normalizeColor(a.Color),
		Coords:      normalizeCoords(a.Coordinates),
		Description: strings.TrimSpace(a.Description),
	}
}

func normalizeKind(raw string) AnnotationKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "circle", "ellipse", "oval":
		return KindCircle
	case "point", "dot":
		return KindPoint
	default:
		// box, rect and anything unrecognized draw as a box
		return KindBox
	}
}

func normalizeColor(raw string) color.RGBA {
	if c, ok := palette[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return palette["red"]
}

// normalizeCoords accepts either an {x,y,w,h} object or a comma separated
// "x,y,w,h" string. Anything unparseable becomes zero geometry, which the
// annotator skips.
func normalizeCoords(raw json.RawMessage) Coords {
	if len(raw) == 0 {
		return Coords{}
	}
	var obj struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return Coords{X: obj.X, Y: obj.Y, W: obj.W, H: obj.H}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Coords{}
	}
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return Coords{}
	}
	vals := make([]float64, 4)
	for i := 0; i < len(parts) && i < 4; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return Coords{}
		}
		vals[i] = v
	}
	return Coords{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}
}

// ToConforme maps the raw conformity/situation value onto 1 (conforming)
// or 0 (non-conforming). The mapping is total: integers pass through,
// booleans map to 1/0, a fixed affirmative string set maps to 1 and
// everything else to 0.
func ToConforme(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case bool:
		if val {
			return 1
		}
		return 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "ok", "conforme", "aprovado", "positivo":
			return 1
		}
		return 0
	default:
		return 0
	}
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func anyToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
