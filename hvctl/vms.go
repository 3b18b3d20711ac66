package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hvgate/hvgate/internal/api"
	"github.com/hvgate/hvgate/internal/auditlog"
)

func listCmd(c *cli.Context) error {
	gw, err := setup(c)
	if err != nil {
		return err
	}

	resp := &api.VMListResponse{}
	if err := gw.get(c.Context, "/vms", resp); err != nil {
		return err
	}

	for _, name := range resp.VMs {
		fmt.Println(name)
	}
	return nil
}

func stateCmd(c *cli.Context) error {
	gw, name, err := setupWithVM(c)
	if err != nil {
		return err
	}

	resp := &api.VMStateResponse{}
	if err := gw.get(c.Context, "/vms/"+url.PathEscape(name)+"/state", resp); err != nil {
		return err
	}

	fmt.Println(resp.State)
	return nil
}

func detailsCmd(c *cli.Context) error {
	gw, name, err := setupWithVM(c)
	if err != nil {
		return err
	}

	resp := &api.VMDetailsResponse{}
	if err := gw.get(c.Context, "/vms/"+url.PathEscape(name)+"/details", resp); err != nil {
		return err
	}

	fmt.Println(resp.Details)
	return nil
}

func actionCmd(verb string) cli.ActionFunc {
	return func(c *cli.Context) error {
		gw, name, err := setupWithVM(c)
		if err != nil {
			return err
		}

		resp := &api.VMActionResponse{}
		if err := gw.post(c.Context, "/vms/"+url.PathEscape(name)+"/"+verb, resp); err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", verb, resp.VM)
		if resp.Output != "" {
			fmt.Println(resp.Output)
		}
		return nil
	}
}

func historyCmd(c *cli.Context) error {
	gw, err := setup(c)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/history?limit=%d", c.Int("limit"))
	if vm := c.String("vm"); vm != "" {
		path = fmt.Sprintf("/vms/%s/history?limit=%d", url.PathEscape(vm), c.Int("limit"))
	}

	resp := &historyResponse{}
	if err := gw.get(c.Context, path, resp); err != nil {
		return err
	}

	printHistory(resp.Entries, os.Stdout)
	return nil
}

type historyResponse struct {
	Entries []auditlog.Entry `json:"entries"`
}

func printHistory(entries []auditlog.Entry, w io.Writer) {
	tr := tabwriter.NewWriter(w, 6, 6, 4, ' ', 0)
	fmt.Fprintf(tr, "TIME\tACTION\tVM\tCLIENT\tSTATUS\tDETAILS\n")
	for _, e := range entries {
		details := e.Details
		if len(details) > 60 {
			details = details[:57] + "..."
		}
		fmt.Fprintf(tr, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Action, e.Target, e.ClientIP, e.Status, details)
	}
	tr.Flush()
}

func setupWithVM(c *cli.Context) (*gatewayClient, string, error) {
	name := c.Args().First()
	if name == "" {
		return nil, "", errors.New("a VM name is required")
	}

	gw, err := setup(c)
	if err != nil {
		return nil, "", err
	}
	return gw, name, nil
}
