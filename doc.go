/*
Command magcompare compares earthquake magnitudes between two catalogs.

Contents

Version 0.1

  Program overview
  Installing
  Command line usage
  Configuration
  File formats
  Algorithm outline


Program overview

Two catalogs report many of the same earthquakes, each with its own
magnitude types.  Magcompare retrieves events from a reference catalog,
GeoNet by default, and a comparison catalog, the USGS by default, finds
which comparison event is the same earthquake as each reference event, and
fits linear relations between the magnitude types of matched pairs.

A run has three stages.

  retrieve    query both catalog services and write one timeseries file
              per catalog and magnitude type
  match       pair reference events with comparison events and write the
              consolidated match file
  associate   fit magnitude relations and write frequency tables

Each stage reads what the one before wrote to the output directory, so
a run can be resumed at any stage, or a match repeated with new settings
without retrieving again.

Reference and comparison may be the same catalog, GeoNet ML against GeoNet
Mw for example.  The catalog is then retrieved once and its events are
paired by id without relocation.


Installing

    go install github.com/soniakeys/magcompare@latest

installs the command magcompare.  A second command summarizes match files,

    go install github.com/soniakeys/magcompare/mcreport@latest


Command line usage

  Usage: magcompare [options]      retrieve, match and associate catalogs
         magcompare -h             display help
         magcompare -v             display version and copyright

  Options:
         -c <config-file>          YAML configuration, default $MAGCOMPARE_CONFIG

Without a configuration file the built in defaults are used.  Interrupting
the program stops retrieval and matching at the next query or lookup.  Series
records appended before the interrupt are kept.


Configuration

The configuration file is YAML.  Every key is optional and overrides a
default.  A complete file with the defaults:

  logging:
    level: info                # debug, info, warn or error
    encoding: console          # console or json
  window:
    start: 2012-01-01T00:00:00Z
    end: 2021-01-01T00:00:00Z
    min_latitude: -90
    max_latitude: 90
    min_longitude: 0           # western bound
    max_longitude: -0.001      # eastern bound
    min_magnitude: 3
    max_magnitude: 10
  catalogs:
    reference:
      name: GeoNet_catalog
      kind: fdsn               # fdsn or isc
      service: https://service.geonet.org.nz/fdsnws/event/1/
      magnitude_types: [M, ML, MLv, mB, Mw(mB), Mw]
      # Mw comes from this moment tensor list, origins from the service
      cmt_url: https://raw.githubusercontent.com/GeoNet/data/master/moment-tensor/GeoNet_CMT_solutions.csv
    comparison:
      name: USGS_catalog
      kind: fdsn
      service: https://earthquake.usgs.gov/fdsnws/event/1/
      magnitude_types: [mww]
      longitude_wrap: true     # service wants longitudes in -180..180
  matching:
    max_dt: 100                # s
    max_dist_km: 1000
    rms_threshold: 5           # s
    workers: 0                 # 0 means one per CPU
  locator:
    picks_file: picks.csv
    vp: 5800                   # m/s
    vs: 3400                   # m/s
    grid_step: 2000            # m
    grid_half_width: 20000     # m
  retrieval:
    retry_delay: 1m
    split_growth: 100
    min_window: 1h
    timeout: 5m
    user_agent: magcompare
  stages:
    retrieve: true
    match: true
    associate: true
  output:
    dir: .
  stats:
    bootstrap_samples: 1000
    repeatable: false
    seed: 3
  metrics:
    pushgateway_url: ""        # empty disables pushing
    job: magcompare

Environment variables override the file:

  MAGCOMPARE_LOG_LEVEL, MAGCOMPARE_LOG_ENCODING, MAGCOMPARE_OUTPUT_DIR,
  MAGCOMPARE_PICKS_FILE, MAGCOMPARE_WORKERS, MAGCOMPARE_RMS_THRESHOLD,
  MAGCOMPARE_RETRY_DELAY, MAGCOMPARE_USER_AGENT, MAGCOMPARE_PUSHGATEWAY_URL,
  MAGCOMPARE_REPEATABLE

and MAGCOMPARE_STAGES, a comma separated list such as "match,associate",
which replaces the stages section.


File formats

All files are CSV with a header line.  Absent values are written nan.

Timeseries files, <catalog>_<type>_timeseries.csv, one row per event that
reports the magnitude type:

  eventID,origin_time,magnitude_type,magnitude,latitude,longitude,depth,description

The pick file gives arrival picks of reference events.  Event ids may be
given in full or as their last path segment.

  eventID,station,latitude,longitude,elevation,phase,time

The match file, magnitude_matches_all.csv, has one row per reference event
and one magnitude column per type seen in either catalog:

  eventID,matchID,RMS_error,latitude,longitude,depth,<types...>

matchID is nan and RMS_error 0 for events without a confirmed match.
magnitude_match_diagnostics.csv gives the time and distance separations of
each confirmed match, the refined hypocenter of the confirming relocation,
and any other comparison event that also passed relocation.

The associate stage writes magnitude_associations.csv with slope and
intercept of each reference and comparison type pair, magnitude_bins.csv
with the binned pairs behind each fit, and <catalog>_<type>_frequency.csv
for every series.


Algorithm outline

Retrieval queries the whole window first.  When a service refuses or fails,
the program waits retry_delay, multiplies the number of parts by
split_growth, and starts over.  When a later part fails it is halved until
it succeeds, but never below min_window.

For matching, each reference event is compared with every comparison event
within max_dt seconds and max_dist_km kilometers of it.  Events without
a depth are never candidates.  Candidates are tried nearest first, ranked by
combined time and distance separation.  For each, the reference event is relocated
by grid search with the candidate origin time fixed, using the reference
event's arrival picks.  The first candidate giving a residual RMS no more
than rms_threshold confirms the match.  Reference events without picks stay
unmatched.  Lookups run concurrently, results are applied in input order,
and comparison events already confirmed are resolved without relocating
again.

Association fits each pair of magnitude types by orthogonal distance
regression, with standard errors from bootstrap resampling.  Setting
stats.repeatable gives the same errors on every run.


-------------
Public domain.
*/
package main
