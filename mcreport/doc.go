/*
Command mcreport summarizes a magnitude match file written by magcompare.

  Usage: mcreport [options] [match-file]
    -t=0: misfit threshold, 0 to count every confirmed match
    -v=false: display version and copyright

The match file defaults to magnitude_matches_all.csv in the current
directory.

For each magnitude type column the report gives the number of reference
events carrying a value of that type, and how many of those have a confirmed
comparison event.  Under the per-type table are the overall match rate and
the mean and maximum misfit of confirmed matches.

With -t, matches with a misfit above the threshold are counted as unmatched.
This allows judging a stricter relocation threshold without rerunning the
match stage.

-------------
Public domain.
*/
package main
