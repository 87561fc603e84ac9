// Command vec0cli is a small demo/harness binary for the vec0 package:
// it opens (or creates) a SQLite database, declares a vec0 virtual
// table from a column spec, and can insert a row, run a KNN query, or
// trigger the optimize maintenance command against it.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"vec0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	dbPath := parseFlag("--db", "./vec0.db")

	switch os.Args[1] {
	case "create":
		runCreate(os.Args[2:], dbPath)
	case "insert":
		runInsert(os.Args[2:], dbPath)
	case "query":
		runQuery(os.Args[2:], dbPath)
	case "optimize":
		runOptimize(os.Args[2:], dbPath)
	case "debug":
		runDebug(dbPath)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// parseFlag extracts a --name=value or --name value flag from the
// command-line arguments, returning def if it isn't present.
func parseFlag(name, def string) string {
	for i, arg := range os.Args {
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
		if arg == name && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
	}
	return def
}

func printUsage() {
	fmt.Println(`Usage:
  vec0cli create --table <name> <column-spec> [...]   Declare a vec0 virtual table
  vec0cli insert --table <name> <column=value> [...]   Insert one row
  vec0cli query --table <name> --vector <col> --k <n> <literal>
                                                        Run a KNN query
  vec0cli optimize --table <name>                      Compact all partitions
  vec0cli debug                                        Print vec_version()/vec_debug()
  vec0cli help                                          Show this help information

Global flags:
  --db <path>   SQLite database file (default ./vec0.db)

create command:
  Declares "CREATE VIRTUAL TABLE <name> USING vec0(<column-spec>, ...)".
  Column specs follow the same grammar vec0 accepts directly, e.g.:
    vec0cli create --table docs 'embedding float32[768]' chunk_size=128

insert command:
  Builds "INSERT INTO <name>(col, ...) VALUES (?, ...)" from the given
  column=value pairs, in declaration order is not required.

query command:
  Builds a KNN query against the named table's hidden distance/k columns:
    vec0cli query --table docs --vector embedding --k 5 '[0.1,0.2,...]'`)
}

func open(dbPath string) *sql.DB {
	db, err := vec0.Open("vec0cli", dbPath)
	if err != nil {
		log.Fatalf("open %s: %v", dbPath, err)
	}
	return db
}

func runCreate(args []string, dbPath string) {
	table := requireFlag(args, "--table")
	cols := positional(args)
	if len(cols) == 0 {
		fmt.Println("error: create requires at least one column spec")
		os.Exit(1)
	}

	db := open(dbPath)
	defer db.Close()

	stmt := fmt.Sprintf("CREATE VIRTUAL TABLE %s USING vec0(%s)", table, strings.Join(cols, ", "))
	if _, err := db.Exec(stmt); err != nil {
		fmt.Printf("create failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created %s\n", table)
}

func runInsert(args []string, dbPath string) {
	table := requireFlag(args, "--table")
	pairs := positional(args)
	if len(pairs) == 0 {
		fmt.Println("error: insert requires at least one column=value pair")
		os.Exit(1)
	}

	var names []string
	var placeholders []string
	var values []interface{}
	for _, p := range pairs {
		eq := strings.Index(p, "=")
		if eq < 0 {
			fmt.Printf("error: malformed column=value pair %q\n", p)
			os.Exit(1)
		}
		names = append(names, p[:eq])
		placeholders = append(placeholders, "?")
		values = append(values, p[eq+1:])
	}

	db := open(dbPath)
	defer db.Close()

	stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES (%s)", table,
		strings.Join(names, ", "), strings.Join(placeholders, ", "))
	res, err := db.Exec(stmt, values...)
	if err != nil {
		fmt.Printf("insert failed: %v\n", err)
		os.Exit(1)
	}
	id, _ := res.LastInsertId()
	fmt.Printf("inserted rowid %d\n", id)
}

func runQuery(args []string, dbPath string) {
	table := requireFlag(args, "--table")
	vectorCol := requireFlag(args, "--vector")
	kStr := flagOrDefault(args, "--k", "10")
	k, err := strconv.Atoi(kStr)
	if err != nil {
		fmt.Printf("error: --k must be an integer: %v\n", err)
		os.Exit(1)
	}
	lit := positional(args)
	if len(lit) == 0 {
		fmt.Println("error: query requires a vector literal")
		os.Exit(1)
	}

	db := open(dbPath)
	defer db.Close()

	stmt := fmt.Sprintf("SELECT rowid, distance FROM %s WHERE %s MATCH ? AND k = ? ORDER BY distance",
		table, vectorCol)
	rows, err := db.Query(stmt, lit[0], k)
	if err != nil {
		fmt.Printf("query failed: %v\n", err)
		os.Exit(1)
	}
	defer rows.Close()

	fmt.Printf("%-10s  %s\n", "rowid", "distance")
	for rows.Next() {
		var rowid int64
		var distance float64
		if err := rows.Scan(&rowid, &distance); err != nil {
			fmt.Printf("scan failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%-10d  %f\n", rowid, distance)
	}
	if err := rows.Err(); err != nil {
		fmt.Printf("query failed: %v\n", err)
		os.Exit(1)
	}
}

func runOptimize(args []string, dbPath string) {
	table := requireFlag(args, "--table")

	db := open(dbPath)
	defer db.Close()

	stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES ('optimize')", table, table)
	if _, err := db.Exec(stmt); err != nil {
		fmt.Printf("optimize failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("optimized %s\n", table)
}

func runDebug(dbPath string) {
	db := open(dbPath)
	defer db.Close()

	var version, debug string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		fmt.Printf("vec_version() failed: %v\n", err)
		os.Exit(1)
	}
	if err := db.QueryRow("SELECT vec_debug()").Scan(&debug); err != nil {
		fmt.Printf("vec_debug() failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(version)
	fmt.Println(debug)
}

func requireFlag(args []string, name string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	fmt.Printf("error: missing required flag %s\n", name)
	os.Exit(1)
	return ""
}

func flagOrDefault(args []string, name, def string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return def
}

// positional returns every argument that isn't a --flag or a value
// consumed by one, preserving order.
func positional(args []string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--") {
			if !strings.Contains(arg, "=") && i+1 < len(args) {
				i++
			}
			continue
		}
		out = append(out, arg)
	}
	return out
}
