// dget calculates the deuteration of a compound from a mass spectrum.
//
// The data file may be a delimited text export (format is guessed
// unless --delimiter, --columns or --skiprows say otherwise) or an
// mzML file.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dget"
	"dget/msdata"
)

var (
	flagAdduct      string
	flagCutoff      string
	flagMassWidth   float64
	flagMode        string
	flagDelimiter   string
	flagColumns     []int
	flagSkipRows    int
	flagScan        int
	flagRealign     bool
	flagBaseline    bool
	flagPercentile  float64
	flagGuessAdduct bool
	flagPlot        string
)

var rootCmd = &cobra.Command{
	Use:   "dget <formula> <datafile>",
	Short: "Calculate compound deuteration from HRMS data",
	Long: `dget calculates the fractional deuteration of a compound from
high resolution mass spectrometry data. The formula is that of the
fully deuterated compound, e.g. C2HD3O for d3-acetic acid.`,
	Args:          cobra.ExactArgs(2),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flagAdduct, "adduct", "[M]+", "adduct of the detected ion")
	f.StringVar(&flagCutoff, "cutoff", "", "lowest state to report, an m/z or 'D<int>'")
	f.Float64Var(&flagMassWidth, "masswidth", 0.5, "m/z window around each target")
	f.StringVar(&flagMode, "mode", dget.ModePeakHeight,
		"signal extraction, 'peak height', 'peak area' or 'raw'")
	f.StringVar(&flagDelimiter, "delimiter", "", "text data delimiter")
	f.IntSliceVar(&flagColumns, "columns", nil, "mass,signal columns in the text data")
	f.IntVar(&flagSkipRows, "skiprows", 0, "header rows to skip in the text data")
	f.IntVar(&flagScan, "scan", -1, "mzML scan index, -1 for the brightest MS1 scan")
	f.BoolVar(&flagRealign, "realign", false,
		"shift the mass axis onto the adduct m/z (calibrate your MS instead)")
	f.BoolVar(&flagBaseline, "baseline", false, "subtract the spectrum baseline")
	f.Float64Var(&flagPercentile, "percentile", 25, "baseline percentile")
	f.BoolVar(&flagGuessAdduct, "guess-adduct", false,
		"search common adducts for the most intense match")
	f.StringVar(&flagPlot, "plot", "", "write a PNG of the spectrum overlay to this file")
}

func run(cmd *cobra.Command, args []string) error {
	data, err := loadData(args[1])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[1], err)
	}

	d, err := dget.New(args[0], data, dget.Options{
		Adduct:    flagAdduct,
		Cutoff:    flagCutoff,
		MassWidth: flagMassWidth,
		Mode:      flagMode,
	})
	if err != nil {
		return err
	}

	if flagBaseline {
		baseline, err := d.SubtractBaseline(0, 0, flagPercentile)
		if err != nil {
			return err
		}
		log.Printf("subtracted baseline of %g", baseline)
	}
	if flagGuessAdduct {
		best, diff, err := d.GuessAdductFromBasePeak(nil)
		if err != nil {
			return err
		}
		log.Printf("best adduct %s, %.4f from base peak", best.Notation, diff)
		if err := d.SetAdduct(best.Notation); err != nil {
			return err
		}
	}
	if flagRealign {
		offset, err := d.AlignToSpectrum(0)
		if err != nil {
			return err
		}
		log.Printf("aligned mass axis by %.4f", offset)
	}

	if err := d.Report(os.Stdout); err != nil {
		return err
	}

	if flagPlot != "" {
		if err := savePlot(d, flagPlot); err != nil {
			return fmt.Errorf("writing plot: %w", err)
		}
	}
	return nil
}

func loadData(path string) (*msdata.Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".mzml") {
		return msdata.ReadMzML(f, flagScan)
	}

	var opts *msdata.TextOptions
	if flagDelimiter != "" || flagColumns != nil || flagSkipRows > 0 {
		opts = &msdata.TextOptions{
			Delimiter: flagDelimiter,
			MassCol:   0,
			IntCol:    1,
			SkipRows:  flagSkipRows,
		}
		if opts.Delimiter == "" {
			opts.Delimiter = "\t"
		}
		if flagColumns != nil {
			if len(flagColumns) != 2 {
				return nil, fmt.Errorf("--columns needs exactly two values, got %d",
					len(flagColumns))
			}
			opts.MassCol, opts.IntCol = flagColumns[0], flagColumns[1]
		}
	}
	return msdata.ReadText(f, opts)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
