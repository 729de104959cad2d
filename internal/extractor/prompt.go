package extractor

import "strings"

// instructionPrompt is sent with every batch. It names the full metric
// schema and warns about Persian numerals; frame indices in the reply are
// batch-local.
var instructionPrompt = `You are analyzing social campaign insight screenshots. Identify UNIQUE data vs duplicates within this batch.

LANGUAGE: Screenshots may be in Persian or English. Persian numbers: ` + "۰-۹" + ` = 0-9. Report all numbers as standard decimal digits.

METRICS TO EXTRACT:
- ` + strings.Join(metricNames[0:4], ", ") + `
- ` + strings.Join(metricNames[4:8], ", ") + `
- ` + strings.Join(metricNames[8:11], ", ") + `
- ` + strings.Join(metricNames[11:15], ", ") + `
- ` + strings.Join(metricNames[15:19], ", ") + `

OUTPUT FORMAT (JSON array, one entry per frame, frame_index relative to this batch):
[
  {
    "frame_index": 0,
    "is_duplicate": false,
    "metrics": {"views": 1234, "likes": 30},
    "metadata": {"language": "fa", "content_type": "story"}
  },
  {
    "frame_index": 1,
    "is_duplicate": true,
    "duplicate_of_frame": 0
  }
]

Return ONLY valid JSON.`
