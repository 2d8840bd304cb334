package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/fxnlabs/occupancy/internal/gpu"
	"github.com/fxnlabs/occupancy/pkg/occclient"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printPresets(w io.Writer, presets []gpu.Preset) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tSM\tSMS\tSMEM/SM\tREGS/SM")
	for _, p := range presets {
		props := p.Properties
		fmt.Fprintf(tw, "%s\t%s\t%d.%d\t%d\t%d\t%d\n",
			p.Name, p.Description, props.ComputeMajor, props.ComputeMinor,
			props.NumSMs, props.SharedMemPerMultiprocessor, props.RegsPerMultiprocessor)
	}
	return tw.Flush()
}

func printDetected(w io.Writer, devices []gpu.DetectedDevice, catalog *gpu.Catalog) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "INDEX\tNAME\tSM\tMEMORY (MB)\tPRESET")
	for _, d := range devices {
		preset := "-"
		if p, ok := catalog.Match(d); ok {
			preset = p.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%d.%d\t%d\t%s\n", d.Index, d.Name, d.ComputeMajor, d.ComputeMinor, d.MemoryTotalMB, preset)
	}
	return tw.Flush()
}

func printActiveBlocks(w io.Writer, resp *occclient.ActiveBlocksResponse) error {
	r := resp.Result
	tw := newTable(w)
	fmt.Fprintf(tw, "device\t%s\n", resp.Device)
	fmt.Fprintf(tw, "kernel\t%s\n", resp.Kernel)
	fmt.Fprintf(tw, "block size\t%d\n", resp.BlockSize)
	fmt.Fprintf(tw, "dynamic smem\t%d\n", resp.DynamicSmemSize)
	fmt.Fprintf(tw, "active blocks/SM\t%d\n", r.ActiveBlocksPerMultiprocessor)
	fmt.Fprintf(tw, "occupancy\t%.1f%%\n", resp.Occupancy*100)
	fmt.Fprintf(tw, "limited by\t%s\n", joinFactors(resp.LimitingFactors))
	fmt.Fprintf(tw, "limits\twarps %s, regs %s, smem %s, blocks %s, threads %s, barriers %s\n",
		limit(r.BlockLimitWarps), limit(r.BlockLimitRegs), limit(r.BlockLimitSharedMem),
		limit(r.BlockLimitBlocks), limit(r.BlockLimitThreads), limit(r.BlockLimitBarriers))
	fmt.Fprintf(tw, "regs/block\t%d\n", r.AllocatedRegistersPerBlock)
	fmt.Fprintf(tw, "smem/block\t%d\n", r.AllocatedSharedMemPerBlock)
	return tw.Flush()
}

func printSweep(w io.Writer, resp *occclient.SweepResponse) error {
	fmt.Fprintf(w, "%s/%s\n", resp.Device, resp.Kernel)
	tw := newTable(w)
	fmt.Fprintln(tw, "BLOCK SIZE\tDYNAMIC SMEM\tBLOCKS/SM\tOCCUPANCY\tLIMITED BY")
	for _, c := range resp.Candidates {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%.1f%%\t%s\n",
			c.BlockSize, c.DynamicSmemSize, c.ActiveBlocks, c.Occupancy*100, joinFactors(c.LimitingFactors))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := resp.Summary
	_, err := fmt.Fprintf(w, "best %d (%.1f%%), mean %.1f%%, stddev %.1f%%, %d with zero occupancy\n",
		s.BestBlockSize, s.BestOccupancy*100, s.MeanOccupancy*100, s.StdDevOccupancy*100, s.ZeroOccupancy)
	return err
}

func printComputeCapability(w io.Writer, major, minor int, resp *occclient.ComputeCapabilityResponse) error {
	if !resp.Supported {
		_, err := fmt.Fprintf(w, "compute capability %d.%d is not supported (newest supported: %s)\n", major, minor, resp.Newest)
		return err
	}
	a := resp.Architecture
	tw := newTable(w)
	fmt.Fprintf(tw, "family\t%s\n", a.Family)
	fmt.Fprintf(tw, "smem granularity\t%d\n", a.SharedMemAllocationGranularity)
	fmt.Fprintf(tw, "register granularity\t%d\n", a.RegisterAllocationGranularity)
	fmt.Fprintf(tw, "max regs/thread\t%d\n", a.MaxRegistersPerThread)
	fmt.Fprintf(tw, "sub-partitions\t%d\n", a.SubPartitions)
	fmt.Fprintf(tw, "max blocks/SM\t%d\n", a.MaxBlocksPerMultiprocessor)
	if len(a.SharedMemConfigs) > 0 {
		fmt.Fprintf(tw, "smem configs\t%s\n", strings.Trim(fmt.Sprint(a.SharedMemConfigs), "[]"))
	}
	if len(resp.Presets) > 0 {
		fmt.Fprintf(tw, "presets\t%s\n", strings.Join(resp.Presets, ", "))
	}
	return tw.Flush()
}

func joinFactors(factors []string) string {
	if len(factors) == 0 {
		return "none"
	}
	return strings.Join(factors, ", ")
}

// limit prints the unlimited sentinel as "-".
func limit(n int) string {
	if n >= math.MaxInt32 {
		return "-"
	}
	return fmt.Sprint(n)
}
