package tableopts

import (
	"regexp"
	"strconv"
	"strings"

	"vec0/internal/vecerr"
	"vec0/internal/vecvalue"
)

var vectorTypeRe = regexp.MustCompile(`^(float32|float|int8|bit)\[(\d+)\]$`)

// Parse builds a Schema from the raw column-definition strings the
// host splits a `CREATE VIRTUAL TABLE t USING vec0(...)` argument list
// into on top-level commas (one string per column/option), plus the
// table name. Every rejection returns a *vecerr.Error of kind
// KindConstructor.
func Parse(tableName string, args []string) (*Schema, error) {
	s := &Schema{
		TableName:      tableName,
		ChunkSize:      DefaultChunkSize,
		DistanceMetric: DefaultDistance,
	}

	seen := map[string]bool{}
	pkSeen := false

	for _, raw := range args {
		def := strings.TrimSpace(raw)
		if def == "" {
			continue
		}

		if eq := strings.Index(def, "="); eq >= 0 && !strings.Contains(def[:eq], " ") {
			key := strings.TrimSpace(def[:eq])
			val := strings.TrimSpace(def[eq+1:])
			if err := applyOption(s, key, val); err != nil {
				return nil, err
			}
			continue
		}

		if strings.HasPrefix(def, "+") {
			col, err := parseAuxiliary(def[1:])
			if err != nil {
				return nil, err
			}
			if seen[col.Name] {
				return nil, vecerr.Constructorf("duplicate column name %q", col.Name)
			}
			seen[col.Name] = true
			if len(s.Auxiliary) >= MaxAuxiliaryCols {
				return nil, vecerr.Constructorf("too many auxiliary columns (max %d)", MaxAuxiliaryCols)
			}
			s.Auxiliary = append(s.Auxiliary, col)
			continue
		}

		fields := strings.Fields(def)
		if len(fields) == 0 {
			return nil, vecerr.Constructorf("empty column definition")
		}
		name := fields[0]
		if len(fields) < 2 {
			return nil, vecerr.Constructorf("column %q: missing type", name)
		}
		rest := strings.ToLower(strings.Join(fields[1:], " "))

		switch {
		case strings.Contains(rest, "primary key"):
			if pkSeen {
				return nil, vecerr.Constructorf("at most one primary key column is allowed")
			}
			pkSeen = true
			switch {
			case strings.HasPrefix(rest, "integer"):
				s.PKKind = PKInteger
			case strings.HasPrefix(rest, "text"):
				s.PKKind = PKText
			default:
				return nil, vecerr.Constructorf("primary key column %q must be declared integer or text", name)
			}
			s.PKName = name
			seen[name] = true

		case strings.Contains(rest, "partition key"):
			typeName := strings.TrimSpace(strings.Fields(rest)[0])
			mt, err := parseMetaType(typeName)
			if err != nil || (mt != MetaInteger && mt != MetaText) {
				return nil, vecerr.Constructorf("partition key column %q must be integer or text", name)
			}
			if len(s.Partitions) >= MaxPartitionCols {
				return nil, vecerr.Constructorf("too many partition key columns (max %d)", MaxPartitionCols)
			}
			if seen[name] {
				return nil, vecerr.Constructorf("duplicate column name %q", name)
			}
			seen[name] = true
			s.Partitions = append(s.Partitions, PartitionColumn{Name: name, Type: mt})

		case vectorTypeRe.MatchString(strings.Fields(rest)[0]):
			vc, err := parseVectorColumn(name, fields[1:])
			if err != nil {
				return nil, err
			}
			if seen[name] {
				return nil, vecerr.Constructorf("duplicate column name %q", name)
			}
			if len(s.Vectors) >= MaxVectorColumns {
				return nil, vecerr.Constructorf("too many vector columns (max %d)", MaxVectorColumns)
			}
			seen[name] = true
			s.Vectors = append(s.Vectors, vc)

		default:
			mt, err := parseMetaType(strings.Fields(rest)[0])
			if err != nil {
				return nil, vecerr.Constructorf("column %q: unknown type %q", name, strings.Fields(rest)[0])
			}
			if seen[name] {
				return nil, vecerr.Constructorf("duplicate column name %q", name)
			}
			if len(s.Metadata) >= MaxMetadataCols {
				return nil, vecerr.Constructorf("too many metadata columns (max %d)", MaxMetadataCols)
			}
			seen[name] = true
			s.Metadata = append(s.Metadata, MetadataColumn{Name: name, Type: mt})
		}
	}

	if len(s.Vectors) == 0 {
		return nil, vecerr.Constructorf("a vec0 table requires at least one vector column")
	}
	if s.ChunkSize <= 0 || s.ChunkSize%8 != 0 || s.ChunkSize > MaxChunkSize {
		return nil, vecerr.Constructorf("chunk_size must be a positive multiple of 8, at most %d", MaxChunkSize)
	}
	return s, nil
}

func applyOption(s *Schema, key, val string) error {
	switch strings.ToLower(key) {
	case "chunk_size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return vecerr.Constructorf("chunk_size: invalid integer %q", val)
		}
		s.ChunkSize = n
	case "distance_metric":
		m := strings.ToLower(val)
		if m != "l1" && m != "l2" && m != "cosine" {
			return vecerr.Constructorf("distance_metric: unknown value %q (want l1, l2, or cosine)", val)
		}
		s.DistanceMetric = m
	default:
		return vecerr.Constructorf("unknown table option %q", key)
	}
	return nil
}

func parseVectorColumn(name string, rest []string) (VectorColumn, error) {
	typeTok := rest[0]
	m := vectorTypeRe.FindStringSubmatch(typeTok)
	if m == nil {
		return VectorColumn{}, vecerr.Constructorf("column %q: malformed vector type %q", name, typeTok)
	}
	var kind vecvalue.Kind
	switch m[1] {
	case "float32", "float":
		kind = vecvalue.Float32
	case "int8":
		kind = vecvalue.Int8
	case "bit":
		kind = vecvalue.Bit
	}
	dim, err := strconv.Atoi(m[2])
	if err != nil || dim < 1 || dim > MaxDimension {
		return VectorColumn{}, vecerr.Constructorf("column %q: dimension must be between 1 and %d", name, MaxDimension)
	}
	if kind == vecvalue.Bit && dim%8 != 0 {
		return VectorColumn{}, vecerr.Constructorf("column %q: bit vector dimension must be a multiple of 8", name)
	}

	vc := VectorColumn{Name: name, Kind: kind, Dim: dim}
	tail := strings.ToLower(strings.Join(rest[1:], " "))
	if idx := strings.Index(tail, "distance_metric="); idx >= 0 {
		m := strings.Fields(tail[idx+len("distance_metric="):])
		if len(m) == 0 {
			return VectorColumn{}, vecerr.Constructorf("column %q: distance_metric= requires a value", name)
		}
		metric := m[0]
		if metric != "l1" && metric != "l2" && metric != "cosine" {
			return VectorColumn{}, vecerr.Constructorf("column %q: unknown distance_metric %q", name, metric)
		}
		vc.DistanceMetric = metric
	}
	return vc, nil
}

func parseAuxiliary(def string) (AuxiliaryColumn, error) {
	fields := strings.Fields(def)
	if len(fields) < 2 {
		return AuxiliaryColumn{}, vecerr.Constructorf("auxiliary column definition %q missing a type", def)
	}
	mt, err := parseMetaType(strings.ToLower(fields[1]))
	if err != nil {
		return AuxiliaryColumn{}, vecerr.Constructorf("auxiliary column %q: unsupported type %q", fields[0], fields[1])
	}
	return AuxiliaryColumn{Name: fields[0], Type: mt}, nil
}

func parseMetaType(tok string) (MetaType, error) {
	switch strings.ToLower(tok) {
	case "boolean", "bool":
		return MetaBoolean, nil
	case "integer", "int":
		return MetaInteger, nil
	case "float", "double", "real":
		return MetaFloat, nil
	case "text", "varchar", "string":
		return MetaText, nil
	default:
		return 0, vecerr.Constructorf("unknown type %q", tok)
	}
}
