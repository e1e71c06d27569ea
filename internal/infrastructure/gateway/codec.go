package gateway

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
)

// Codec translates between a partner's wire format and flat records
type Codec interface {
	Decode(r io.Reader) ([]integration.Record, error)
	Encode(w io.Writer, records []integration.Record) error
	ContentType() string
}

// CodecFor returns the codec for a configured data format
func CodecFor(format partner.DataFormat) (Codec, error) {
	switch format {
	case partner.DataFormatJSON:
		return jsonCodec{}, nil
	case partner.DataFormatXML:
		return xmlCodec{}, nil
	case partner.DataFormatCSV:
		return csvCodec{}, nil
	case partner.DataFormatHL7:
		return hl7Codec{}, nil
	default:
		return nil, fmt.Errorf("unsupported data format %q", format)
	}
}

// sortedKeys gives codecs a stable field order
func sortedKeys(record integration.Record) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonCodec reads and writes a flat JSON array of objects. Non-string
// values are rendered through json.Number so numeric precision survives.
type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Decode(r io.Reader) ([]integration.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json records: %w", err)
	}

	records := make([]integration.Record, 0, len(raw))
	for _, obj := range raw {
		record := make(integration.Record, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case nil:
				record[k] = ""
			case string:
				record[k] = val
			case json.Number:
				record[k] = val.String()
			case bool:
				record[k] = fmt.Sprintf("%t", val)
			default:
				return nil, fmt.Errorf("field %q is not a flat value", k)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (jsonCodec) Encode(w io.Writer, records []integration.Record) error {
	out := make([]map[string]string, len(records))
	for i, r := range records {
		out[i] = r
	}
	return json.NewEncoder(w).Encode(out)
}

// csvCodec reads and writes header-row CSV. Columns come from the header
// on decode and from the sorted union of record keys on encode.
type csvCodec struct{}

func (csvCodec) ContentType() string { return "text/csv" }

func (csvCodec) Decode(r io.Reader) ([]integration.Record, error) {
	reader := csv.NewReader(r)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv records: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	records := make([]integration.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(integration.Record, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (csvCodec) Encode(w io.Writer, records []integration.Record) error {
	if len(records) == 0 {
		return nil
	}

	columns := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			columns[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(columns))
	for k := range columns {
		header = append(header, k)
	}
	sort.Strings(header)

	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for _, r := range records {
		for i, col := range header {
			row[i] = r[col]
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// xmlField is one <field name="...">value</field> element
type xmlField struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

type xmlRecord struct {
	XMLName xml.Name   `xml:"record"`
	Fields  []xmlField `xml:"field"`
}

type xmlDocument struct {
	XMLName xml.Name    `xml:"records"`
	Records []xmlRecord `xml:"record"`
}

// xmlCodec reads and writes a <records><record><field> document
type xmlCodec struct{}

func (xmlCodec) ContentType() string { return "application/xml" }

func (xmlCodec) Decode(r io.Reader) ([]integration.Record, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xml records: %w", err)
	}

	records := make([]integration.Record, 0, len(doc.Records))
	for _, rec := range doc.Records {
		record := make(integration.Record, len(rec.Fields))
		for _, f := range rec.Fields {
			record[f.Name] = f.Value
		}
		records = append(records, record)
	}
	return records, nil
}

func (xmlCodec) Encode(w io.Writer, records []integration.Record) error {
	doc := xmlDocument{Records: make([]xmlRecord, 0, len(records))}
	for _, r := range records {
		rec := xmlRecord{Fields: make([]xmlField, 0, len(r))}
		for _, k := range sortedKeys(r) {
			rec.Fields = append(rec.Fields, xmlField{Name: k, Value: r[k]})
		}
		doc.Records = append(doc.Records, rec)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(doc)
}

// hl7Codec handles pipe-delimited HL7 v2 messages. Each message becomes
// one flat record keyed by segment name and field position, MSH-9 style.
// Repeated segments within a message get a numeric suffix on the segment
// name.
type hl7Codec struct{}

func (hl7Codec) ContentType() string { return "x-application/hl7-v2+er7" }

func (hl7Codec) Decode(r io.Reader) ([]integration.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hl7 payload: %w", err)
	}

	normalized := strings.ReplaceAll(string(data), "\r\n", "\r")
	normalized = strings.ReplaceAll(normalized, "\n", "\r")

	var records []integration.Record
	var current integration.Record
	segmentSeen := make(map[string]int)

	for _, segment := range strings.Split(normalized, "\r") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		fields := strings.Split(segment, "|")
		name := fields[0]

		if name == "MSH" {
			if current != nil {
				records = append(records, current)
			}
			current = make(integration.Record)
			segmentSeen = make(map[string]int)
		}
		if current == nil {
			return nil, fmt.Errorf("hl7 message does not start with MSH segment")
		}

		segmentSeen[name]++
		prefix := name
		if segmentSeen[name] > 1 {
			prefix = fmt.Sprintf("%s#%d", name, segmentSeen[name])
		}

		// MSH-1 is the field separator itself, so field numbering for
		// MSH is shifted by one relative to other segments
		offset := 0
		if name == "MSH" {
			offset = 1
			current[prefix+"-1"] = "|"
		}
		for i, value := range fields[1:] {
			current[fmt.Sprintf("%s-%d", prefix, i+1+offset)] = value
		}
	}
	if current != nil {
		records = append(records, current)
	}
	return records, nil
}

func (hl7Codec) Encode(w io.Writer, records []integration.Record) error {
	for _, record := range records {
		segments := make(map[string][]string)
		for key, value := range record {
			seg, idx, ok := splitHL7Key(key)
			if !ok {
				return fmt.Errorf("field %q is not an hl7 segment reference", key)
			}
			fields := segments[seg]
			for len(fields) < idx {
				fields = append(fields, "")
			}
			fields[idx-1] = value
			segments[seg] = fields
		}

		names := make([]string, 0, len(segments))
		for name := range segments {
			names = append(names, name)
		}
		// MSH always leads
		sort.Slice(names, func(i, j int) bool {
			if names[i] == "MSH" {
				return true
			}
			if names[j] == "MSH" {
				return false
			}
			return names[i] < names[j]
		})

		for _, name := range names {
			fields := segments[name]
			base := strings.SplitN(name, "#", 2)[0]
			if base == "MSH" && len(fields) > 0 {
				// The leading separator field is implied by the literal |
				fields = fields[1:]
			}
			line := base + "|" + strings.Join(fields, "|")
			if _, err := io.WriteString(w, line+"\r"); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitHL7Key parses "PID-3" or "OBX#2-5" into segment and 1-based field
// index.
func splitHL7Key(key string) (string, int, bool) {
	i := strings.LastIndex(key, "-")
	if i <= 0 || i == len(key)-1 {
		return "", 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(key[i+1:], "%d", &idx); err != nil || idx < 1 {
		return "", 0, false
	}
	return key[:i], idx, true
}
