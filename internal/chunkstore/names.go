package chunkstore

import "fmt"

// Shadow table name helpers, following the `t_<suffix>` convention
// from the external interface: one info table, one chunks table, one
// rowids directory, one vector-chunk table per vector column, one
// metadata table (plus a text-overflow side table) per metadata
// column, and one auxiliary table.

func quoteIdent(name string) string { return `"` + name + `"` }

func infoTable(table string) string { return quoteIdent(table + "_info") }

func chunksTable(table string) string { return quoteIdent(table + "_chunks") }

func rowidsTable(table string) string { return quoteIdent(table + "_rowids") }

func auxiliaryTable(table string) string { return quoteIdent(table + "_auxiliary") }

func vectorTable(table string, colIdx int) string {
	return quoteIdent(fmt.Sprintf("%s_vector_chunks%02d", table, colIdx))
}

func metadataTable(table string, colIdx int) string {
	return quoteIdent(fmt.Sprintf("%s_metadata%02d", table, colIdx))
}

func metadataTextTable(table string, colIdx int) string {
	return quoteIdent(fmt.Sprintf("%s_metadatatext_data%02d", table, colIdx))
}
