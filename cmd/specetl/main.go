// Command specetl applies declarative specifications to CSV datasets.
//
// Usage:
//
//	# Write the demo dataset and specification
//	specetl sample --data employees.csv --spec bonus.json
//
//	# Process a dataset
//	specetl run --spec bonus.json --data employees.csv --output processed.csv --report report.json
//
//	# Check a specification before storing it
//	specetl lint --spec bonus.json
//
//	# Apply catalog migrations
//	specetl migrate up --database postgres://localhost/specetl
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
