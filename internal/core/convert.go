package core

// convert.go turns spreadsheet cells into PostgreSQL values and stored
// values back into display strings.
//
// Input is whatever a partner's spreadsheet produced:
//   - Portuguese dates (15/01/2024) as well as ISO dates and Excel serials
//   - Decimal commas and thousand separators (1.234,56)
//   - Sim/Não booleans
//   - Excel formula prefixes (="value")
//
// Output is canonical: dates YYYY-MM-DD, decimals with '.', booleans Sim/Não.
// Exports and previews both format through FormatValue, so a file exported
// and re-imported unchanged produces no differences.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	boolTrue  = "Sim"
	boolFalse = "Não"
	isoDate   = "2006-01-02"
)

var (
	decimalRegex   = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	thousandsRegex = regexp.MustCompile(`^[+-]?\d{1,3}(\.\d{3})+$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006", "2/1/2006",
	"02-01-2006", "2-1-2006",
	"02.01.2006", "2.1.2006",
	"2006/01/02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// ToPgText converts a string to pgtype.Text.
// Returns invalid if the string is empty or only whitespace.
func ToPgText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ToPgDate parses day-first and ISO dates. A bare number is read as an
// Excel date serial, which is what .xlsx date cells hold.
func ToPgDate(s string) pgtype.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Date{Valid: false}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			y, m, d := t.Date()
			return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
		}
	}

	return pgtype.Date{Valid: false}
}

// NormalizeDecimal rewrites a user-entered number into the form PostgreSQL
// accepts. The last of '.' or ',' is the decimal separator when both appear;
// a lone separator is decimal unless it repeats.
func NormalizeDecimal(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("€", "", "%", "", " ", "", "\u00a0", "").Replace(s)
	if s == "" {
		return "", false
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")

	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	if !decimalRegex.MatchString(s) {
		return "", false
	}
	return canonicalDecimal(s), true
}

// canonicalDecimal drops a leading '+', redundant leading zeros and trailing
// fractional zeros: "+012.50" -> "12.5", "15.00" -> "15".
func canonicalDecimal(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")

	intPart, frac, hasFrac := strings.Cut(s, ".")
	if hasFrac {
		frac = strings.TrimRight(frac, "0")
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}

	out := intPart
	if frac != "" {
		out += "." + frac
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out
}

// ToPgNumeric converts a decimal string to pgtype.Numeric.
func ToPgNumeric(s string) pgtype.Numeric {
	dec, ok := NormalizeDecimal(s)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	var n pgtype.Numeric
	if err := n.Scan(dec); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}

// ToPgInt4 converts a whole number to pgtype.Int4. "12.000" is twelve
// thousand; "12,5" is rejected.
func ToPgInt4(s string) pgtype.Int4 {
	s = strings.TrimSpace(s)
	if thousandsRegex.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
	}
	dec, ok := NormalizeDecimal(s)
	if !ok || strings.Contains(dec, ".") {
		return pgtype.Int4{Valid: false}
	}
	n, err := strconv.ParseInt(dec, 10, 32)
	if err != nil {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(n), Valid: true}
}

// ToPgBool accepts Sim/Não in their usual spellings plus true/false and 1/0.
func ToPgBool(s string) pgtype.Bool {
	switch foldKey(s) {
	case "sim", "s", "true", "t", "yes", "y", "1":
		return pgtype.Bool{Bool: true, Valid: true}
	case "nao", "n", "false", "f", "no", "0":
		return pgtype.Bool{Bool: false, Valid: true}
	default:
		return pgtype.Bool{Valid: false}
	}
}

// CleanCell removes spreadsheet artifacts from a cell value:
// surrounding whitespace, the ="..." formula wrapper and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.TrimSpace(strings.Trim(s, `"'`))
}

// stripAccents removes combining marks: "Matrícula" -> "Matricula".
func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// foldKey lowercases, strips accents and trims.
func foldKey(s string) string {
	return strings.ToLower(stripAccents(strings.TrimSpace(s)))
}

// NormalizeHeader reduces a header, field ID or label to a comparable form:
// "Data de Nascimento", "data_de_nascimento" and " DATA DE NASCIMENTO "
// all become "data de nascimento".
func NormalizeHeader(s string) string {
	s = foldKey(CleanCell(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseCell validates raw against the field type and returns the value to
// store together with its canonical display form.
func ParseCell(spec FieldSpec, raw string) (any, string, error) {
	raw = CleanCell(raw)
	if spec.Normalizer != nil {
		raw = spec.Normalizer(raw)
	}

	switch spec.Type {
	case FieldEnum:
		key := foldKey(raw)
		for _, v := range spec.EnumValues {
			if foldKey(v) == key {
				return v, v, nil
			}
		}
		return nil, "", fmt.Errorf("invalid enum %q (permitidos: %s)", raw, strings.Join(spec.EnumValues, ", "))

	case FieldDate:
		d := ToPgDate(raw)
		if !d.Valid {
			return nil, "", fmt.Errorf("invalid date %q", raw)
		}
		return d, d.Time.Format(isoDate), nil

	case FieldNumeric:
		dec, ok := NormalizeDecimal(raw)
		n := ToPgNumeric(raw)
		if !ok || !n.Valid {
			return nil, "", fmt.Errorf("invalid number %q", raw)
		}
		return n, dec, nil

	case FieldInt:
		n := ToPgInt4(raw)
		if !n.Valid {
			return nil, "", fmt.Errorf("invalid number %q", raw)
		}
		return n, strconv.Itoa(int(n.Int32)), nil

	case FieldBool:
		b := ToPgBool(raw)
		if !b.Valid {
			return nil, "", fmt.Errorf("invalid boolean %q", raw)
		}
		return b, FormatValue(b.Bool), nil

	default:
		return raw, raw, nil
	}
}

// FormatValue renders a stored value the way exports and previews show it.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return boolTrue
		}
		return boolFalse
	case int:
		return strconv.Itoa(val)
	case int16:
		return strconv.FormatInt(int64(val), 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(isoDate)
	case pgtype.Numeric:
		if !val.Valid {
			return ""
		}
		raw, err := val.Value()
		if err != nil {
			return ""
		}
		s, _ := raw.(string)
		if decimalRegex.MatchString(s) {
			return canonicalDecimal(s)
		}
		return s
	case pgtype.Date:
		if !val.Valid {
			return ""
		}
		return val.Time.Format(isoDate)
	case pgtype.Text:
		if !val.Valid {
			return ""
		}
		return val.String
	case pgtype.Bool:
		if !val.Valid {
			return ""
		}
		return FormatValue(val.Bool)
	case pgtype.Int4:
		if !val.Valid {
			return ""
		}
		return strconv.FormatInt(int64(val.Int32), 10)
	default:
		return fmt.Sprint(val)
	}
}
