package migrate

import (
	"context"
	"fmt"
	"io"
)

// BatchJobName is the sibling batch job disabled before a run, named here
// because it is a pre-flight SQL surface the specification calls out
// explicitly (§6) rather than something the engine computes.
const BatchJobName = "nice2.dms.DeleteUnreferencedBinariesBatchJob"

// BatchJobDB is the narrow slice of SourceDB that DisableBatchJob needs,
// kept separate from the main SourceDB interface because it is a pre-flight
// concern external to the pipeline proper (§6 names only its SQL surface).
type BatchJobDB interface {
	// DisableBatchJob executes an UPDATE marking jobName inactive and
	// reports how many rows it affected (0 if no such job row exists, 1 if
	// it was found and disabled).
	DisableBatchJob(ctx context.Context, jobName string) (rowsAffected int64, err error)
}

// DisableBatchJob disables the named sibling batch job row before a run and
// writes a short human-readable status to out, matching the original
// implementation's utils.rs::disable_batch_job. Neither the batch job's
// absence nor it being inactive already is considered an error; only a
// database failure while executing the update is.
func DisableBatchJob(ctx context.Context, db BatchJobDB, jobName string, out io.Writer) error {
	fmt.Fprintf(out, "Disabling batchjob %q ... ", jobName)

	rowsAffected, err := db.DisableBatchJob(ctx, jobName)
	if err != nil {
		fmt.Fprintln(out, "failed")
		return fmt.Errorf("disabling batch job %q: %w", jobName, err)
	}

	if rowsAffected == 0 {
		fmt.Fprintln(out, "skipped (no such batchjob)")
	} else {
		fmt.Fprintln(out, "done")
	}
	return nil
}
