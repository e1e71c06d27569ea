package gateway

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/backend/internal/domain/integration"
	"github.com/carelink/backend/internal/domain/partner"
)

func TestCodecFor(t *testing.T) {
	for _, format := range []partner.DataFormat{
		partner.DataFormatJSON, partner.DataFormatXML, partner.DataFormatCSV, partner.DataFormatHL7,
	} {
		codec, err := CodecFor(format)
		require.NoError(t, err)
		assert.NotNil(t, codec)
	}

	_, err := CodecFor("yaml")
	assert.Error(t, err)
}

func TestJSONCodec(t *testing.T) {
	codec := jsonCodec{}

	records, err := codec.Decode(strings.NewReader(`[
		{"sku":"LAB-001","quantity":2,"price":12.50,"in_stock":true,"note":null},
		{"sku":"LAB-002","quantity":1,"price":3.25,"in_stock":false}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, integration.Record{
		"sku": "LAB-001", "quantity": "2", "price": "12.50", "in_stock": "true", "note": "",
	}, records[0])

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, records))
	roundTripped, err := codec.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, roundTripped)
}

func TestJSONCodec_RejectsNestedValues(t *testing.T) {
	_, err := jsonCodec{}.Decode(strings.NewReader(`[{"items":[1,2]}]`))
	assert.Error(t, err)
}

func TestCSVCodec(t *testing.T) {
	codec := csvCodec{}

	records, err := codec.Decode(strings.NewReader("sku,quantity\nLAB-001,2\nLAB-002,1\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, integration.Record{"sku": "LAB-001", "quantity": "2"}, records[0])

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, records))
	assert.Equal(t, "quantity,sku\n2,LAB-001\n1,LAB-002\n", buf.String())
}

func TestXMLCodec(t *testing.T) {
	codec := xmlCodec{}

	input := `<records>
		<record><field name="sku">LAB-001</field><field name="quantity">2</field></record>
	</records>`
	records, err := codec.Decode(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, integration.Record{"sku": "LAB-001", "quantity": "2"}, records[0])

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, records))
	roundTripped, err := codec.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, records, roundTripped)
}

func TestHL7Codec_Decode(t *testing.T) {
	codec := hl7Codec{}

	message := "MSH|^~\\&|LAB|ACME|CARELINK|CLINIC|20260315||ORU^R01|MSG001|P|2.5\r" +
		"PID|1||PAT-42||Doe^Jane\r" +
		"OBX|1|NM|GLU||105|mg/dL\r" +
		"OBX|2|NM|HBA1C||5.9|%\r"

	records, err := codec.Decode(strings.NewReader(message))
	require.NoError(t, err)
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "|", record["MSH-1"])
	assert.Equal(t, "^~\\&", record["MSH-2"])
	assert.Equal(t, "ORU^R01", record["MSH-9"])
	assert.Equal(t, "MSG001", record["MSH-10"])
	assert.Equal(t, "PAT-42", record["PID-3"])
	assert.Equal(t, "105", record["OBX-5"])
	assert.Equal(t, "5.9", record["OBX#2-5"])
}

func TestHL7Codec_MultipleMessages(t *testing.T) {
	codec := hl7Codec{}

	messages := "MSH|^~\\&|A\rPID|1\r" + "MSH|^~\\&|B\rPID|2\r"
	records, err := codec.Decode(strings.NewReader(messages))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A", records[0]["MSH-3"])
	assert.Equal(t, "B", records[1]["MSH-3"])
}

func TestHL7Codec_RequiresMSH(t *testing.T) {
	_, err := hl7Codec{}.Decode(strings.NewReader("PID|1||PAT-42\r"))
	assert.Error(t, err)
}
