/*
Command w51fit fits rotational diagrams and free-free spectra for
interferometric line and continuum observations of the W51 star forming
region.

Contents

Version 0.3

  Program overview
  Installing
  Command line usage
  Configuration
  File formats
  HTTP API
  Algorithm outline


Program overview

The excitation temperature and column density of a molecule follow from
the integrated intensities of several of its rotational transitions.  Each
intensity gives the column density of the upper state of its transition.
Plotted as ln(N_u/g_u) against upper state energy, the points of gas in
local thermodynamic equilibrium lie on a line with slope -1/T_ex.  The
intercept with the partition function Q(T_ex) gives the total column.

w51fit fits such rotational (Boltzmann) diagrams for a single spectrum
and for every pixel of a set of integrated intensity maps, producing
temperature and column density maps.  It also fits the free-free spectral
energy distributions of hypercompact HII regions for emission measure,
and derives region size, electron density, ionized mass and Lyman
continuum photon rate.

Sample run:

A catalog of methanol lines, ch3oh.txt, looks like this:

  # name            GHz         Eu_K     gu   log10Aij
  8(-1)-7(0)E       229.758756  89.10    17   -4.3784
  3(-2)-4(-1)E      230.027047  39.83     7   -4.7208
  10(2)-9(3)A-      231.281110  165.35   21   -4.7372

and a file of integrated intensities of these lines, e2.txt,

  229.758756  41.2  0.8
  230.027047  36.5  0.8
  231.281110  18.9  0.8

then

  w51fit tex --molecule CH3OH ch3oh.txt e2.txt

prints the diagram points followed by the fitted excitation temperature,
column density, partition function and fit statistics.


Installing

You need Go 1.22 or later.  Then

    go install github.com/soniakeys/w51fit@latest

installs the w51fit command.


Command line usage

  w51fit tex <catalog> <measurements>   Fit one rotational diagram.
  w51fit texmap [flags]                 Fit a diagram at every map pixel.
  w51fit moment0 <cube>                 Integrate a cube over velocity.
  w51fit freefree <sed>                 Fit a free-free SED.
  w51fit synth [flags]                  Write synthetic maps for testing.
  w51fit profile <image>                Radial profile of a map.
  w51fit fetch <url> <file>             Download a line catalog.
  w51fit serve                          Run the HTTP API.
  w51fit version                        Display version and copyright.

"w51fit help <command>" describes the flags of each command.  File
arguments may be local paths or s3://bucket/key URIs.  Global flags are
--config, --log-level and --log-json.


Configuration

Settings come from built in defaults, then an optional config file named
with --config, then environment variables.  A variable is W51FIT_ and the
setting key in upper case with '.' replaced by '_'.  Keys:

  log.level              debug, info, warn or error.  Default info.
  log.json               JSON log lines instead of console format.
  rotdiag.min_nupper     N_u/g_u at or below this is dropped.  Default 1;
                         0 keeps every positive point.
  rotdiag.max_uplims     Most upper limits allowed, or "half".  Default half.
  rotdiag.uplim_sigma    Upper limit in units of uncertainty.  Default 3.
  rotdiag.errors_from_uplims
                         Use the limit as the uncertainty of a point
                         flagged as an upper limit.  Default false.
  texmap.workers         Concurrent fits, 0 for the number of CPUs.
  texmap.upper_limit     Fixed upper limit, K km/s, when no error maps.
  freefree.te            Electron temperature, K.  Default 8500.
  freefree.em_guess      Starting emission measure, pc cm-6.  Default 1e7.
  freefree.normfac       Starting normalization, sr, 0 to derive it.
  freefree.iterations    Solver iterations per run.  Default 200.
  physprops.dist_kpc     Distance, kpc.  Default 5.1.
  physprops.beam_as2     Beam area, arcsec2, for resolved sources.
  partfunc.table         File of tabulated Q(T) per molecule.
  partfunc.levels        File of energy levels to sum Q(T) over.
  partfunc.url           Base URL of a partition function service.
  s3.region, s3.endpoint, s3.access_key, s3.secret_key
                         S3 access.  An endpoint selects path style
                         addressing, as used by MinIO.
  server.addr            Listen address.  Default :8080.
  server.allowed_origins Comma separated CORS origins.

Molecules are looked up in partfunc.table, then partfunc.levels, then the
service at partfunc.url.


File formats

Line catalogs have one transition per line:

  name  rest-frequency-GHz  upper-energy-K  upper-degeneracy  log10-Aij

Measurement files have

  line  intensity-K-km/s  [uncertainty-K-km/s]

where line is a catalog name or a rest frequency in GHz.  SED files have

  frequency-GHz  flux-mJy  [uncertainty-mJy]

Columns are separated by white space, tabs, commas or '|'.  Lines starting
with '#' are comments, and a heading line is skipped.

Partition function tables have lines "molecule T Q".  Level files have
lines "molecule energy-K degeneracy".

Maps and cubes are FITS primary images with celestial axes in RA---SIN
and DEC--SIN or similar, as written by CASA.  Output maps carry the
celestial header of the input.


HTTP API

serve exposes

  GET  /health
  GET  /partition/{molecule}?temperature=T
  POST /fit/boltzmann
  POST /fit/freefree

with the OpenAPI document at /openapi.json and interactive docs at /docs.


Algorithm outline

Integrated intensity W in K km/s converts to upper state column per
degeneracy as

  N_u/g_u = 8 pi k nu^2 W / (h c^3 A_ul g_u)

With uncertainty maps, a point below uplim_sigma times its uncertainty is
an upper limit.  Too many upper limits, or too few points above
min_nupper, declines the fit; declined pixels are 0 in the output maps.
The line is fit by weighted least squares in ln(N_u/g_u), weights the
inverse squared relative uncertainty.  Pixels with any NaN input are NaN
in both outputs.

The free-free model is normfac times the slab intensity at temperature
T_e, in the Rayleigh-Jeans limit,

  I = 2 k T_e nu^2 / c^2                  tau >= 1
  I = 2 k T_e nu^2 / c^2 tau e^(1-tau)    tau < 1
  tau = 3.014e-2 T_e^-1.5 nu^-2 EM g

with the Gaunt factor g = ln(4.955e-2/nu) + 1.5 ln T_e below
nu = T_e^1.5/1000 GHz and 1 above.  It is fit by Levenberg-Marquardt in the
logarithms of EM and normfac.  A fit is accepted when restarting the
solver from its solution leaves it in place.

-------------
Public domain.
*/
package main
