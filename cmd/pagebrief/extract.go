package main

import (
	"fmt"

	"github.com/cwygoda/pagebrief/internal/domain"
)

// Run executes the extract command.
func (c *ExtractCmd) Run(deps *Dependencies) error {
	data, err := deps.Poller.ExtractAndWait(deps.Ctx, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %v\n", err)
		return err
	}
	return printJSON(deps.Stdout, data)
}

// Run executes the submit command.
func (c *SubmitCmd) Run(deps *Dependencies) error {
	job, err := deps.Service.Submit(deps.Ctx, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %v\n", err)
		return err
	}
	return printJSON(deps.Stdout, toOutput(job))
}

// Run executes the status command.
func (c *StatusCmd) Run(deps *Dependencies) error {
	job, err := deps.Service.Poll(deps.Ctx, c.ID)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %v\n", err)
		return err
	}
	job.ID = c.ID

	if c.Wait {
		job, err = deps.Poller.Wait(deps.Ctx, job)
		if err != nil && job == nil {
			fmt.Fprintf(deps.Stderr, "error: %v\n", err)
			return err
		}
	}
	if perr := printJSON(deps.Stdout, toOutput(job)); perr != nil {
		return perr
	}
	return err
}

func toOutput(job *domain.Job) jobOutput {
	out := jobOutput{
		ID:     job.ID,
		Status: string(job.Status),
		Error:  job.Error,
	}
	if job.Status == domain.StatusCompleted {
		out.Data = job.Result
		if out.Data == nil {
			out.Data = &domain.ExtractedData{Keywords: []string{}}
		}
	}
	return out
}
