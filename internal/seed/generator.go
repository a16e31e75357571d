package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"index-pump/internal/source"
)

var seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// GenerateValue produces a plausible value for a column, first by name
// (email, phone, city and friends), then by normalized type.
func GenerateValue(col source.ColumnInfo) interface{} {
	name := strings.ToLower(col.Name)

	switch {
	case strings.Contains(name, "email"):
		return gofakeit.Email()
	case strings.Contains(name, "phone"), strings.Contains(name, "mobile"):
		return gofakeit.Phone()
	case strings.Contains(name, "first_name"), strings.Contains(name, "firstname"):
		return gofakeit.FirstName()
	case strings.Contains(name, "last_name"), strings.Contains(name, "lastname"):
		return gofakeit.LastName()
	case name == "name" || strings.HasSuffix(name, "_name"):
		return gofakeit.Name()
	case strings.Contains(name, "city"):
		return gofakeit.City()
	case strings.Contains(name, "country"):
		return gofakeit.Country()
	case strings.Contains(name, "address"):
		return gofakeit.Street()
	case strings.Contains(name, "zip"), strings.Contains(name, "postal"):
		return gofakeit.Zip()
	case strings.Contains(name, "url"), strings.Contains(name, "website"):
		return gofakeit.URL()
	case strings.Contains(name, "uuid"), strings.Contains(name, "guid"):
		return gofakeit.UUID()
	case strings.Contains(name, "price"), strings.Contains(name, "amount"), strings.Contains(name, "cost"):
		return gofakeit.Price(1, 999)
	}

	return generateByType(col)
}

func generateByType(col source.ColumnInfo) interface{} {
	dataType := strings.ToLower(col.DataType)

	switch {
	case strings.Contains(dataType, "tinyint"):
		return seededRand.Intn(128)
	case strings.Contains(dataType, "smallint"):
		return seededRand.Intn(32767)
	case strings.Contains(dataType, "bigint"):
		return seededRand.Int63n(1 << 40)
	case strings.Contains(dataType, "int"), strings.Contains(dataType, "serial"), strings.Contains(dataType, "number"):
		return seededRand.Intn(1 << 30)
	case strings.Contains(dataType, "decimal"), strings.Contains(dataType, "numeric"), strings.Contains(dataType, "money"):
		return gofakeit.Price(1, 9999)
	case strings.Contains(dataType, "float"), strings.Contains(dataType, "double"), strings.Contains(dataType, "real"):
		return seededRand.Float64() * 1000
	case strings.Contains(dataType, "bool"), dataType == "bit":
		return seededRand.Intn(2) == 1
	case strings.Contains(dataType, "timestamp"), strings.Contains(dataType, "datetime"):
		return recentTime().Format("2006-01-02 15:04:05")
	case dataType == "date":
		return recentTime().Format("2006-01-02")
	case strings.Contains(dataType, "time"):
		return recentTime().Format("15:04:05")
	case strings.Contains(dataType, "uuid"):
		return gofakeit.UUID()
	case strings.Contains(dataType, "json"):
		return fmt.Sprintf(`{"note": %q}`, gofakeit.Sentence(4))
	case strings.Contains(dataType, "text"), strings.Contains(dataType, "clob"):
		return gofakeit.Paragraph(1, 3, 8, " ")
	default:
		// varchar/char and anything unknown: a short sentence.
		return gofakeit.Sentence(3)
	}
}

// recentTime picks a timestamp within the last 90 days so updated-at columns
// look alive.
func recentTime() time.Time {
	offset := time.Duration(seededRand.Int63n(int64(90 * 24 * time.Hour)))
	return time.Now().Add(-offset)
}
