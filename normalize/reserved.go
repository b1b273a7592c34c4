package normalize

var reservedKeywords = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"case": true, "check": true, "column": true, "constraint": true, "create": true,
	"default": true, "desc": true, "distinct": true, "do": true, "else": true, "end": true,
	"false": true, "for": true, "foreign": true, "from": true, "grant": true, "group": true,
	"having": true, "in": true, "index": true, "into": true, "is": true, "join": true,
	"limit": true, "not": true, "null": true, "offset": true, "on": true, "or": true,
	"order": true, "primary": true, "references": true, "schema": true, "select": true,
	"table": true, "then": true, "to": true, "true": true, "union": true, "unique": true,
	"user": true, "using": true, "view": true, "when": true, "where": true, "with": true,
}

// IsReserved reports whether name is a SQL keyword that cannot be used as a
// bare table or column name.
func IsReserved(name string) bool {
	return reservedKeywords[name]
}
