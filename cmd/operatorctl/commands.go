package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/kiranshivaraju/operator-service/internal/signature"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSignCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sign <message>",
		Short: "Sign message+nonce and print the nonce, signature and signer address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSigner(v)
			if err != nil {
				return err
			}
			sig, err := signature.Sign(s.key, args[0]+s.nonce)
			if err != nil {
				return err
			}
			address, err := signature.Recover(sig, args[0]+s.nonce)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"address":   address,
				"message":   args[0],
				"nonce":     s.nonce,
				"signature": sig,
			})
		},
	}
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	var agreementID, environment, workflowFile, chainID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Submit a compute job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSigner(v)
			if err != nil {
				return err
			}
			workflow, err := readWorkflow(cmd.InOrStdin(), workflowFile)
			if err != nil {
				return err
			}
			sig, err := s.sign("")
			if err != nil {
				return err
			}

			body := map[string]any{
				"agreementId":       agreementID,
				"owner":             s.owner,
				"providerSignature": sig,
				"environment":       environment,
				"nonce":             s.nonce,
				"workflow":          workflow,
			}
			if chainID != "" {
				body["chainId"] = chainID
			}

			var out []map[string]any
			if err := newClient(v).do(cmd.Context(), http.MethodPost, "/compute", nil, body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&agreementID, "agreement-id", "", "Agreement id of the job")
	cmd.Flags().StringVar(&environment, "environment", "", "Namespace to run the job in")
	cmd.Flags().StringVar(&workflowFile, "workflow", "-", "Workflow JSON file, - for stdin")
	cmd.Flags().StringVar(&chainID, "chain-id", "", "Chain id of the agreement")
	_ = cmd.MarkFlagRequired("agreement-id")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}

// jobFlags are the selectors shared by status, stop and delete.
type jobFlags struct {
	jobID       string
	agreementID string
	chainID     string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.jobID, "job-id", "", "Job id")
	cmd.Flags().StringVar(&f.agreementID, "agreement-id", "", "Agreement id")
	cmd.Flags().StringVar(&f.chainID, "chain-id", "", "Restrict to jobs of this chain")
}

func (f *jobFlags) query(s *signer) (url.Values, error) {
	sig, err := s.sign(f.jobID)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"owner":             {s.owner},
		"nonce":             {s.nonce},
		"providerSignature": {sig},
	}
	if f.jobID != "" {
		q.Set("jobId", f.jobID)
	}
	if f.agreementID != "" {
		q.Set("agreementId", f.agreementID)
	}
	if f.chainID != "" {
		q.Set("chainId", f.chainID)
	}
	return q, nil
}

func newJobCmd(v *viper.Viper, use, short, method string) *cobra.Command {
	var flags jobFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSigner(v)
			if err != nil {
				return err
			}
			q, err := flags.query(s)
			if err != nil {
				return err
			}
			var out []map[string]any
			if err := newClient(v).do(cmd.Context(), method, "/compute", q, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "status", "Show the status of jobs", http.MethodGet)
}

func newStopCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "stop", "Request jobs to stop", http.MethodPut)
}

func newDeleteCmd(v *viper.Viper) *cobra.Command {
	return newJobCmd(v, "delete", "Delete jobs", http.MethodDelete)
}

func newRunningCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "running",
		Short: "List jobs that have not finished",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out []map[string]any
			if err := newClient(v).do(cmd.Context(), http.MethodGet, "/runningjobs", nil, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newResultCmd(v *viper.Viper) *cobra.Command {
	var jobID, output, rangeHeader string
	var index int

	cmd := &cobra.Command{
		Use:   "result",
		Short: "Download one output of a job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSigner(v)
			if err != nil {
				return err
			}
			sig, err := s.sign(jobID)
			if err != nil {
				return err
			}
			q := url.Values{
				"jobId":             {jobID},
				"index":             {strconv.Itoa(index)},
				"owner":             {s.owner},
				"nonce":             {s.nonce},
				"providerSignature": {sig},
			}
			var header http.Header
			if rangeHeader != "" {
				header = http.Header{"Range": {rangeHeader}}
			}

			resp, err := newClient(v).send(cmd.Context(), http.MethodGet, "/getResult", q, nil, header)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			n, err := io.Copy(w, resp.Body)
			if err != nil {
				return fmt.Errorf("download interrupted after %d bytes: %w", n, err)
			}
			if w != cmd.OutOrStdout() {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", n, output)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job id")
	cmd.Flags().IntVar(&index, "index", 0, "Output index")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVar(&rangeHeader, "range", "", "HTTP Range header, e.g. bytes=0-1023")
	_ = cmd.MarkFlagRequired("job-id")
	return cmd
}

func newEnvironmentsCmd(v *viper.Viper) *cobra.Command {
	var chainID string
	cmd := &cobra.Command{
		Use:   "environments",
		Short: "List registered environments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var q url.Values
			if chainID != "" {
				q = url.Values{"chainId": {chainID}}
			}
			var out []map[string]any
			if err := newClient(v).do(cmd.Context(), http.MethodGet, "/environments", q, nil, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&chainID, "chain-id", "", "Only environments accepting this chain")
	return cmd
}

func newAnnounceCmd(v *viper.Viper) *cobra.Command {
	var environment, status string
	var limit int

	cmd := &cobra.Command{
		Use:   "announce",
		Short: "Send an environment heartbeat (admin)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{"environment": environment, "limit": limit}
			if status != "" {
				if !json.Valid([]byte(status)) {
					return fmt.Errorf("--status must be a JSON object")
				}
				body["status"] = json.RawMessage(status)
			}
			var ids []string
			if err := newClient(v).do(cmd.Context(), http.MethodPost, "/announce", nil, body, &ids); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ids)
		},
	}
	cmd.Flags().StringVar(&environment, "environment", "", "Namespace being announced")
	cmd.Flags().StringVar(&status, "status", "", `Status JSON, e.g. {"allowedChainId":[1]}`)
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum job ids to return")
	_ = cmd.MarkFlagRequired("environment")
	return cmd
}

func readWorkflow(stdin io.Reader, path string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("workflow is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
