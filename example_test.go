package dwca_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/dwca"
	"github.com/nao1215/dwca/domain/model"
)

// createTempArchive writes a small taxon core with a vernacular name
// extension and returns its directory.
func createTempArchive() string {
	tmpDir, err := os.MkdirTemp("", "dwca_example")
	if err != nil {
		log.Fatal(err)
	}

	taxa := "taxonID\tscientificName\n" +
		"2\tQuercus rubra\n" +
		"1\tQuercus alba\n" +
		"3\tQuercus robur\n"
	vernacular := "taxonID\tvernacularName\tlanguage\n" +
		"3\tpedunculate oak\ten\n" +
		"1\twhite oak\ten\n" +
		"1\tchêne blanc\tfr\n" +
		"7\tholm oak\ten\n"

	for name, content := range map[string]string{"taxon.txt": taxa, "vernacular.txt": vernacular} {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			log.Fatal(err)
		}
		// sorted files must be strictly newer than their source
		past := time.Now().Add(-time.Minute)
		if err := os.Chtimes(path, past, past); err != nil {
			log.Fatal(err)
		}
	}
	return tmpDir
}

func archiveIn(dir string) *model.Archive {
	withHeader := model.WithDialect(model.DefaultDialect().WithHeaderLines(1))
	core := model.NewFileDescriptor(model.DwcTaxon, []string{filepath.Join(dir, "taxon.txt")},
		withHeader,
		model.WithIDIndex(0),
		model.WithFields(model.NewField(model.DwcScientificName, 1)))
	vernacular := model.NewFileDescriptor(model.GbifVernacular, []string{filepath.Join(dir, "vernacular.txt")},
		withHeader,
		model.WithIDIndex(0),
		model.WithFields(
			model.NewField(model.DwcVernacularName, 1),
			model.NewField(model.DcLanguage, 2),
		))
	return model.NewArchive(core, model.WithExtension(vernacular))
}

// ExampleOpenArchive joins a core file with one extension. Rows come back
// in identifier order and extension rows without a core record are counted
// as orphans.
func ExampleOpenArchive() {
	tmpDir := createTempArchive()
	defer os.RemoveAll(tmpDir)

	rows, err := dwca.OpenArchive(context.Background(), archiveIn(tmpDir), dwca.NewOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	for rows.Next() {
		star := rows.Record()
		id, _ := star.Core().ID()
		name, _ := star.Core().Value(model.DwcScientificName)
		fmt.Printf("%s %s\n", id, name)
		for _, v := range star.Extension(model.GbifVernacular) {
			common, _ := v.Value(model.DwcVernacularName)
			lang, _ := v.Value(model.DcLanguage)
			fmt.Printf("  %s (%s)\n", common, lang)
		}
	}
	if err := rows.Err(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("orphans:", rows.Orphans()[model.GbifVernacular])

	// Output:
	// 1 Quercus alba
	//   white oak (en)
	//   chêne blanc (fr)
	// 2 Quercus rubra
	// 3 Quercus robur
	//   pedunculate oak (en)
	// orphans: 1
}

// ExampleReader_Prepare shows that sorted files are reused until a source
// file changes.
func ExampleReader_Prepare() {
	tmpDir := createTempArchive()
	defer os.RemoveAll(tmpDir)
	workDir, err := os.MkdirTemp("", "dwca_work")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(workDir)

	reader, err := dwca.NewReader(archiveIn(tmpDir), dwca.NewOptions().WithWorkDir(workDir))
	if err != nil {
		log.Fatal(err)
	}

	for range 2 {
		done, err := reader.Prepare(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println("sorted taxa:", done[model.DwcTaxon], "sorted names:", done[model.GbifVernacular])
	}

	// Output:
	// sorted taxa: true sorted names: true
	// sorted taxa: false sorted names: false
}

// ExampleOpenFile reads one file in file order without any join.
func ExampleOpenFile() {
	tmpDir := createTempArchive()
	defer os.RemoveAll(tmpDir)

	rows, err := dwca.OpenFile(archiveIn(tmpDir).Core(), dwca.NewOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()

	for rows.Next() {
		name, _ := rows.Record().Value(model.DwcScientificName)
		fmt.Println(name)
	}
	if err := rows.Err(); err != nil {
		log.Fatal(err)
	}

	// Output:
	// Quercus rubra
	// Quercus alba
	// Quercus robur
}

// ExampleDump exports star records as JSON Lines.
func ExampleDump() {
	tmpDir := createTempArchive()
	defer os.RemoveAll(tmpDir)

	reader, err := dwca.NewReader(archiveIn(tmpDir), dwca.NewOptions())
	if err != nil {
		log.Fatal(err)
	}

	out := filepath.Join(tmpDir, "taxa.jsonl")
	n, err := dwca.Dump(context.Background(), reader, out, dwca.NewDumpOptions().WithFormat(dwca.OutputFormatJSONL))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("records:", n)

	// Output:
	// records: 3
}
