// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package typeinfer implements the per-column type inference used to
// pick a page's on-disk representation: a small rank counter tracks,
// for each column, how many values have matched each candidate
// DataType, and the final vote folds that history into one PageType.
package typeinfer

import "fmt"

// DataType is one candidate interpretation of a field value. The
// values are declared in trial precedence order (strictest first);
// NewRankCounter seeds a fresh counter in exactly this order.
type DataType int

const (
	NONE DataType = iota
	BOOL
	DATETIME
	DATETIMEUS
	DATE
	DATEUS
	TIME
	INT
	FLOAT
	STRING
	numDataTypes
)

func (d DataType) String() string {
	switch d {
	case NONE:
		return "NONE"
	case BOOL:
		return "BOOL"
	case DATETIME:
		return "DATETIME"
	case DATETIMEUS:
		return "DATETIME_US"
	case DATE:
		return "DATE"
	case DATEUS:
		return "DATE_US"
	case TIME:
		return "TIME"
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case STRING:
		return "STRING"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// PageType is the on-disk storage discriminant of a page.
type PageType int

const (
	UNSET PageType = iota
	UNICODE
	INT64
	FLOAT64
	BOOLPAGE
	OBJECT
)

func (p PageType) String() string {
	switch p {
	case UNSET:
		return "UNSET"
	case UNICODE:
		return "UNICODE"
	case INT64:
		return "INT64"
	case FLOAT64:
		return "FLOAT64"
	case BOOLPAGE:
		return "BOOL"
	case OBJECT:
		return "OBJECT"
	default:
		return fmt.Sprintf("PageType(%d)", int(p))
	}
}

// NullSet is the canonical set of strings mapped to the Python None
// object in OBJECT pages.
var NullSet = map[string]bool{
	"":     true,
	"null": true,
	"Null": true,
	"NULL": true,
	"#N/A": true,
	"#n/a": true,
	"None": true,
}

// IsNull reports whether s is a member of the canonical null set.
func IsNull(s string) bool {
	return NullSet[s]
}
